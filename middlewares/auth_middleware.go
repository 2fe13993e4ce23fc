package middlewares

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/services"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

const actorKey = "actor"

// Authenticator resolves token claims to a live account.
type Authenticator interface {
	Authenticate(ctx context.Context, userID uint) (*models.User, error)
}

// AuthMiddleware rejects requests without a valid Bearer token for an active user.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			utils.HandleError(c, utils.Unauthorized(errors.New("authorization header missing")))
			c.Abort()
			return
		}
		if !authenticate(c, auth, token) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth attaches the caller when a valid token is present and otherwise lets the
// request through anonymously. A malformed or expired token is still rejected.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" && !authenticate(c, auth, token) {
			c.Abort()
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, auth Authenticator, token string) bool {
	claims, err := utils.ParseToken(token)
	if err != nil || claims.UserID == 0 {
		utils.HandleError(c, utils.Unauthorized(utils.ErrInvalidToken))
		return false
	}

	user, err := auth.Authenticate(c.Request.Context(), claims.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return false
	}

	c.Set(actorKey, &services.Actor{UserID: user.ID, Role: user.Role})
	c.Set("userID", user.ID)
	c.Set("role", string(user.Role))
	return true
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// CurrentActor returns the authenticated caller, or nil for anonymous requests.
func CurrentActor(c *gin.Context) *services.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*services.Actor)
	return actor
}
