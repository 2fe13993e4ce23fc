package middlewares

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

// WebSocketAuthMiddleware authenticates upgrade requests, which cannot carry headers from
// a browser, through the token query parameter. A Bearer header is accepted as well.
func WebSocketAuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = bearerToken(c)
		}
		if token == "" {
			utils.HandleError(c, utils.Unauthorized(errors.New("token query parameter missing")))
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
