package middlewares

import (
	"context"
	"net/http"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the caller's agent identity and tenant from the
// request token. Token issuance lives outside this service; we only validate
// and scope. Revoked tokens are tracked in Redis.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		revoked, exists, err := config.GetRedisValue("RevokedToken:" + token)
		if err == nil && exists && revoked != "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		parsed, err := utils.JwtValidate(token)
		if err != nil || !parsed.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		claims, ok := parsed.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), utils.ContextKeyToken, token)
		ctx = utils.SetAgentIdInContext(ctx, claims.AgentId)
		ctx = utils.SetBusinessIdInContext(ctx, claims.BusinessId)
		if claims.Role != "" {
			ctx = context.WithValue(ctx, utils.ContextKeyUsername, claims.Subject)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
