package middlewares

import (
	"context"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/leasing_backend/utils"
	"github.com/gin-gonic/gin"
)

type authContextKey struct{}

// AuthMiddleware guards a route group with bearer token auth. Requests
// without a valid token are rejected; claims of accepted tokens are put on
// the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Request.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := utils.JwtValidate(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := context.WithValue(c.Request.Context(), authContextKey{}, claims)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AuthClaimsFromContext returns the claims AuthMiddleware stored, or nil.
func AuthClaimsFromContext(ctx context.Context) *utils.AuthClaims {
	claims, _ := ctx.Value(authContextKey{}).(*utils.AuthClaims)
	return claims
}
