package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"vidtube/api/internal/config"
	"vidtube/api/internal/models"
	"vidtube/api/internal/security"
)

// CurrentUserKey is the gin context key under which Auth stores the resolved
// user for downstream handlers.
const CurrentUserKey = "current_user"

// UserLoader is the slice of the credential store the middleware needs.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// Auth resolves the access token (cookie or bearer header) to a user and
// attaches it to the request context. Requests without a valid token never
// reach the protected handlers.
func Auth(cfg *config.AppConfig, users UserLoader, cookies *security.CookieTransport) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := cookies.AccessTokenFromRequest(c.Request)
		if !ok {
			abortUnauthorized(c, "missing access token")
			return
		}

		claims, err := security.ParseAccessToken(tokenStr, cfg.Security.AccessTokenSecret)
		if err != nil {
			abortUnauthorized(c, "invalid access token")
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.Subject)
		if err != nil {
			abortUnauthorized(c, "invalid access token")
			return
		}

		c.Set(CurrentUserKey, user)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"statusCode": http.StatusUnauthorized,
		"data":       nil,
		"message":    message,
		"success":    false,
	})
}
