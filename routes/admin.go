package routes

import (
	"context"
	"net/http"
	"time"

	"elearning-platform/middleware"
	"elearning-platform/models"

	"github.com/gin-gonic/gin"
)

// Reconciler is satisfied by *scheduler.Reconciler.
type Reconciler interface {
	Run(ctx context.Context) (int, error)
}

// SetupAdminRoutes registers account and maintenance endpoints. reconciler may
// be nil, in which case POST /admin/reconcile is not mounted.
func SetupAdminRoutes(api *gin.RouterGroup, users AuthAPI, quota QuotaAPI, reconciler Reconciler, authMiddleware *middleware.AuthMiddleware, roleMiddleware *middleware.RoleMiddleware) {
	admin := api.Group("/admin")
	admin.Use(authMiddleware.RequireAuth())
	admin.Use(roleMiddleware.AdminGuard())

	admin.GET("/users", func(c *gin.Context) {
		list, err := users.ListUsers(c.Request.Context(), queryInt64(c, "skip"), queryInt64(c, "limit"))
		if err != nil {
			respondServiceError(c, err, "Failed to list users")
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": list, "count": len(list)})
	})

	admin.PUT("/users/:id/quota", func(c *gin.Context) {
		var req models.SetQuotaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		ctx := c.Request.Context()
		user, err := users.Me(ctx, c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to load user")
			return
		}
		userID := user.ID.Hex()
		if err := quota.SetLimit(ctx, userID, *req.DailyTokenLimit); err != nil {
			respondServiceError(c, err, "Failed to update quota")
			return
		}
		status, err := quota.Status(ctx, userID)
		if err != nil {
			respondServiceError(c, err, "Failed to load quota")
			return
		}
		c.JSON(http.StatusOK, status)
	})

	if reconciler == nil {
		return
	}

	// Runs orphan cleanup now instead of waiting for the scheduled job
	admin.POST("/reconcile", func(c *gin.Context) {
		start := time.Now()
		removed, err := reconciler.Run(c.Request.Context())
		if err != nil {
			respondServiceError(c, err, "Reconciliation failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"removed_sources": removed,
			"duration_ms":     time.Since(start).Milliseconds(),
		})
	})
}
