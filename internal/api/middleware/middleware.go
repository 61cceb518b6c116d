package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/The-Promised-Neverland/relay/pkg/logger"
)

// IdentityKey is the gin context key holding the authenticated identity.
const IdentityKey = "identity"

func CorsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OperatorAuth admits requests carrying the operator token as a bearer
// header or, for WebSocket upgrades, a token query parameter. An empty
// configured token admits nobody.
func OperatorAuth(identity, token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if presented == "" || presented == c.GetHeader("Authorization") {
			presented = c.Query("token")
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			logger.Log.Warn("Rejected unauthenticated request", "path", c.Request.URL.Path, "remote", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "unauthorized",
			})
			return
		}
		c.Set(IdentityKey, identity)
		c.Next()
	}
}
