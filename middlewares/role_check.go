package middlewares

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

// RequireRoles must run after AuthMiddleware.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := CurrentActor(c)
		if actor == nil {
			utils.HandleError(c, utils.Unauthorized(errors.New("no authenticated user")))
			c.Abort()
			return
		}

		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		utils.HandleError(c, utils.Forbidden(fmt.Errorf("role %s not in %v", actor.Role, roles)))
		c.Abort()
	}
}

func AdminOnly() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}

func StaffOnly() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin, models.RoleAgent)
}
