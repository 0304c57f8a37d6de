package middlewares

import (
	"net/http"

	"bitbucket.org/mohealth/registry_backend/config"
	"bitbucket.org/mohealth/registry_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware authenticates the "token" header. The token must be a
// JWT this service signed AND have a live redis session; either check
// failing rejects the request.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		validated, err := utils.JwtValidate(token)
		if err != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUsernameInContext(ctx, username)
		if claims, ok := validated.Claims.(*utils.JwtCustomClaim); ok {
			ctx = utils.SetUserIdInContext(ctx, claims.ID)
			ctx = utils.SetRoleInContext(ctx, claims.Role)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
