package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-tracker/models"
	"github.com/yeremiapane/order-tracker/utils"
)

// RequireRoles lets the request through only when the token role is one of
// roles. Admins always pass.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(ContextRole)
		if !exists {
			utils.AbortWithError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			return
		}
		userRole, _ := v.(string)

		if userRole == models.RoleAdmin {
			c.Next()
			return
		}
		for _, r := range roles {
			if r == userRole {
				c.Next()
				return
			}
		}

		utils.AbortWithError(c, http.StatusForbidden, fmt.Errorf("role %q may not access this resource", userRole))
	}
}

// StaffOnly admits every role that may move orders.
func StaffOnly() gin.HandlerFunc {
	return RequireRoles(models.StaffRoles...)
}

func AdminOnly() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}
