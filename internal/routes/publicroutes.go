package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/SkillSwap/internal/handlers"
	"github.com/preetsinghmakkar/SkillSwap/internal/metrics"
	"github.com/preetsinghmakkar/SkillSwap/internal/middlewares"
)

// HealthCheck reports readiness of a dependency.
type HealthCheck func(c *gin.Context) error

func RegisterPublicEndpoints(
	router *gin.Engine,
	webSocketHandler *handlers.WebSocketHandler,
	health HealthCheck,
	jwtSecret string,
) {
	router.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health(c); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	public := router.Group("/api")

	// Signaling socket. The token rides in the query string because browsers
	// cannot set headers on the handshake.
	wsAuth := middlewares.WebSocketAuthMiddleware(jwtSecret)
	public.GET("/ws/signaling", wsAuth, webSocketHandler.HandleWebSocket)
}
