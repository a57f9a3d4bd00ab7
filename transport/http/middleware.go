package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/chomp-auth/service"
	"github.com/rs/zerolog"
)

// RequireSession rejects requests while no verified session is held
func RequireSession(sessions *service.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessions.Session()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		// Set the user in the context
		c.Set("userID", session.UserID)

		c.Next()
	}
}

// RequestLogger logs every request at debug level
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
