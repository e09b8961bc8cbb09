package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trailmeet/backend/internal/models"
	"github.com/trailmeet/backend/pkg/response"
)

// ContextUser is the gin context key holding the authenticated *models.User.
const ContextUser = "user"

// SessionResolver turns a bearer token into the user it belongs to.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*models.User, error)
}

// Session returns a middleware that requires "Authorization: Bearer <token>" and stores the user in context.
func Session(resolver SessionResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, logger, models.ErrUnauthenticated)
			c.Abort()
			return
		}
		u, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			response.Error(c, logger, err)
			c.Abort()
			return
		}
		c.Set(ContextUser, u)
		c.Next()
	}
}

// BearerToken extracts the token of a Bearer authorization header. The scheme is case-insensitive.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// CurrentUser returns the user set by Session. It panics on routes without the middleware.
func CurrentUser(c *gin.Context) *models.User {
	return c.MustGet(ContextUser).(*models.User)
}

func userFromContext(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}
