package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeaderKey is the header carrying the admin API key
const APIKeyHeaderKey = "X-API-Key"

// APIKeyAuth guards a route group with a single shared key. An empty key
// disables the check.
func APIKeyAuth(key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(APIKeyHeaderKey))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
				"hint":  "provide X-API-Key header",
			})
			return
		}
		c.Next()
	}
}
