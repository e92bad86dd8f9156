package middleware

import (
	"net/http"
	"slices"

	"elearning-platform/models"
	"elearning-platform/utils"

	"github.com/gin-gonic/gin"
)

type RoleMiddleware struct{}

func NewRoleMiddleware() *RoleMiddleware {
	return &RoleMiddleware{}
}

func (r *RoleMiddleware) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			utils.RespondWithUnauthorized(c, "User role not found")
			c.Abort()
			return
		}

		if !slices.Contains(allowedRoles, role) {
			utils.RespondWithError(c, http.StatusForbidden, "forbidden", "Insufficient permissions", gin.H{
				"required_roles": allowedRoles,
				"user_role":      role,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (r *RoleMiddleware) AdminGuard() gin.HandlerFunc {
	return r.RequireRole(models.RoleAdmin)
}

// StaffGuard admits instructors and admins, who manage course content.
func (r *RoleMiddleware) StaffGuard() gin.HandlerFunc {
	return r.RequireRole(models.RoleInstructor, models.RoleAdmin)
}

func (r *RoleMiddleware) StudentGuard() gin.HandlerFunc {
	return r.RequireRole(models.RoleStudent, models.RoleInstructor, models.RoleAdmin)
}

// Helper function to check if user is admin
func IsAdmin(c *gin.Context) bool {
	return GetRole(c) == models.RoleAdmin
}

// IsStaff reports whether the caller may manage course content.
func IsStaff(c *gin.Context) bool {
	role := GetRole(c)
	return role == models.RoleAdmin || role == models.RoleInstructor
}

// CanManage reports whether the caller owns the resource or is an admin.
func CanManage(c *gin.Context, ownerID string) bool {
	return IsAdmin(c) || (IsStaff(c) && GetUserID(c) == ownerID)
}
