package middlewares

import (
	"chatgate/models"

	"github.com/gin-gonic/gin"
)

const currentUserKey = "currentUser"

func setCurrentUser(c *gin.Context, user *models.User) {
	c.Set(currentUserKey, user)
}

// CurrentUser はAuthMiddlewareがセットしたユーザーを返します。
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}
