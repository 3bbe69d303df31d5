package api

import (
	"log"
	"net/http"

	"PromptToVideo-server/models"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the shared-secret header against the api_key
// allow-list. The webhook and health endpoints are mounted outside this
// middleware and stay open.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-API-Key header required"})
			return
		}

		entry, err := models.LookupAPIKey(key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		if entry.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "API key disabled"})
			return
		}

		// Best effort bookkeeping; a failed touch never blocks the request.
		if err := models.TouchAPIKey(entry.ID); err != nil {
			log.Printf("[Auth] touch api key %s failed: %v", entry.ID, err)
		}

		c.Next()
	}
}
