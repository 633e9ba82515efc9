package httpgateway

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// corsMiddleware allows arbitrary browser origins to reach tunneled
// endpoints: a tunnel's public surface is, by design, whatever the
// developer's local app serves, not a fixed origin the relay can
// enumerate.
func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:    []string{"*"},
		ExposeHeaders:   []string{"*"},
	})
}

// securityHeaders adds the baseline response hardening headers the
// teacher's API surface carries, trimmed to what a relay with no
// same-origin assets needs.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
