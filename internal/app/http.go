package app

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/SkillSwap/internal/config"
	"github.com/preetsinghmakkar/SkillSwap/internal/handlers"
	"github.com/preetsinghmakkar/SkillSwap/internal/middlewares"
	"github.com/preetsinghmakkar/SkillSwap/internal/repositories"
	"github.com/preetsinghmakkar/SkillSwap/internal/routes"
	"github.com/preetsinghmakkar/SkillSwap/internal/services"
	"github.com/preetsinghmakkar/SkillSwap/internal/websocket"
)

// NewRouter wires repositories, services and handlers onto a gin engine.
func NewRouter(cfg config.Config, infra *Infra) *gin.Engine {
	// ----------------------------
	// Dependencies
	// ----------------------------

	sessionRepo := repositories.NewSessionRepository(infra.DB)
	userRepo := repositories.NewUserRepository(infra.DB)
	txnRepo := repositories.NewTransactionRepository(infra.DB)

	ledger := services.NewLedgerService(userRepo, txnRepo)
	sessionService := services.NewSessionService(infra.DB, sessionRepo, ledger, infra.Notifier)

	hub := websocket.NewHub(cfg.RoomMaxMembers)

	sessionHandler := handlers.NewSessionHandler(sessionService)
	userHandler := handlers.NewUserHandler(ledger)
	webSocketHandler := handlers.NewWebSocketHandler(hub, cfg.CORSAllowedOrigins)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.RequestLogger())
	router.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	routes.RegisterPublicEndpoints(router, webSocketHandler, func(c *gin.Context) error {
		return infra.DB.Ping(c.Request.Context())
	}, cfg.JWTSecret)
	routes.RegisterProtectedEndpoints(router, sessionHandler, userHandler, cfg.JWTSecret)

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization")
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}
