package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/SkillSwap/internal/handlers"
	"github.com/preetsinghmakkar/SkillSwap/internal/middlewares"
)

func RegisterProtectedEndpoints(
	router *gin.Engine,
	sessionHandler *handlers.SessionHandler,
	userHandler *handlers.UserHandler,
	jwtSecret string,
) {
	protected := router.Group("/api")
	protected.Use(middlewares.AuthMiddleware(jwtSecret))

	protected.POST("/sessions", sessionHandler.Create)
	protected.GET("/sessions/my-sessions", sessionHandler.MySessions)
	protected.GET("/sessions/:id", sessionHandler.Get)
	protected.POST("/sessions/:id/confirm", sessionHandler.Confirm)
	protected.POST("/sessions/:id/cancel", sessionHandler.Cancel)
	protected.POST("/sessions/:id/dispute", sessionHandler.Dispute)
	protected.POST("/sessions/:id/start", sessionHandler.Start)
	protected.POST("/sessions/:id/end", sessionHandler.End)

	protected.GET("/users/me/balance", userHandler.Balance)
	protected.GET("/users/me/transactions", userHandler.Transactions)
}
