package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// WebSocketAuthMiddleware authenticates signaling connections. Browsers
// cannot set headers on a websocket handshake, so the token travels in the
// token query parameter. Must run before the upgrade.
func WebSocketAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		userID, err := ParseAccessToken(token, jwtSecret)
		if err != nil {
			log.Warn().Err(err).Msg("websocket token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}
