package delivery

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth guards the device-registry endpoints with the shared REST API
// key. The key is accepted as the rest_api_key query/form parameter or the
// X-API-KEY header.
func APIKeyAuth(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Query("rest_api_key")
		if key == "" {
			key = c.PostForm("rest_api_key")
		}
		if key == "" {
			key = c.GetHeader("X-API-KEY")
		}

		if expected == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":           true,
				"message":         "REST API key is not valid",
				"subscription_id": nil,
			})
			return
		}
		c.Next()
	}
}
