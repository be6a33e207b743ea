package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen/auth"
)

// claimsKey is the gin context key the auth middleware stores verified
// claims under.
const claimsKey = "user"

// publicPaths do not require authentication.
var publicPaths = map[string]bool{
	"/":        true,
	"/health":  true,
	"/metrics": true,
}

// Authenticate enforces a bearer access token on every non-public route and
// attaches the verified claims to the context. OPTIONS always passes.
func Authenticate(authority *auth.TokenAuthority) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		path := trimTrailingSlash(c.Request.URL.Path)
		if publicPaths[path] || strings.HasPrefix(path, "/metrics") {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Missing or invalid Authorization header. Expected: Bearer <token>",
			})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := authority.Verify(token, auth.TokenTypeAccess)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Invalid or expired JWT.",
			})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// CurrentUser returns the verified claims the auth middleware attached.
func CurrentUser(c *gin.Context) (auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return auth.Claims{}, false
	}
	claims, ok := v.(auth.Claims)
	return claims, ok
}
