package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/phd-portal-api/internal/models"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
	"github.com/noah-isme/phd-portal-api/pkg/response"
)

// RequireRoles blocks requests whose active role is not in the list. The
// token is role-bound, so a multi-role user must switch roles to pass.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireWorkflowRole admits any role that can hold a workflow stage. Admin
// passes too; the handlers treat it as institute-wide.
func RequireWorkflowRole() gin.HandlerFunc {
	return RequireRoles(
		models.RoleStudent, models.RoleFaculty, models.RolePhdCoordinator,
		models.RoleHod, models.RoleAdordc, models.RoleDordc, models.RoleDra,
		models.RoleDirector, models.RoleDoctoral, models.RoleExternal,
		models.RoleAdmin,
	)
}
