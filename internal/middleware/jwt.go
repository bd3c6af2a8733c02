package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/streampulse/backend/internal/auth"
	"github.com/streampulse/backend/pkg/response"
)

// ContextAccountID is the key for the authenticated account id in gin context.
const ContextAccountID = "account_id"

// JWT returns a middleware that validates a bearer token and sets the
// account id in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextAccountID, claims.AccountID)
		c.Next()
	}
}
