package routes

import (
	"context"
	"net/http"

	"elearning-platform/internal/auth"
	"elearning-platform/middleware"
	"elearning-platform/models"

	"github.com/gin-gonic/gin"
)

// AuthAPI is satisfied by *services.AuthService.
type AuthAPI interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, *auth.TokenPair, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.User, *auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, claims *auth.Claims, all bool) error
	Me(ctx context.Context, userID string) (*models.User, error)
	ListUsers(ctx context.Context, skip, limit int64) ([]models.UserInfo, error)
}

func tokenResponse(pair *auth.TokenPair, user *models.User) models.TokenPairResponse {
	resp := models.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		AccessExp:    pair.AccessExp,
		RefreshExp:   pair.RefreshExp,
	}
	if user != nil {
		info := user.Info()
		resp.User = &info
	}
	return resp
}

func SetupAuthRoutes(api *gin.RouterGroup, svc AuthAPI, authMiddleware *middleware.AuthMiddleware) {
	authGroup := api.Group("/auth")

	authGroup.POST("/register", func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		user, pair, err := svc.Register(c.Request.Context(), req)
		if err != nil {
			respondServiceError(c, err, "Failed to register user")
			return
		}
		c.JSON(http.StatusCreated, tokenResponse(pair, user))
	})

	authGroup.POST("/login", func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		user, pair, err := svc.Login(c.Request.Context(), req)
		if err != nil {
			respondServiceError(c, err, "Failed to log in")
			return
		}
		c.JSON(http.StatusOK, tokenResponse(pair, user))
	})

	authGroup.POST("/refresh", func(c *gin.Context) {
		var req models.RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		pair, err := svc.Refresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			respondServiceError(c, err, "Failed to refresh token")
			return
		}
		c.JSON(http.StatusOK, tokenResponse(pair, nil))
	})

	protected := authGroup.Group("")
	protected.Use(authMiddleware.RequireAuth())

	// ?all=true revokes every session of the user.
	protected.POST("/logout", func(c *gin.Context) {
		all := c.Query("all") == "true"
		if err := svc.Logout(c.Request.Context(), middleware.GetClaims(c), all); err != nil {
			respondServiceError(c, err, "Failed to log out")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	})

	protected.GET("/me", func(c *gin.Context) {
		user, err := svc.Me(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			respondServiceError(c, err, "Failed to load profile")
			return
		}
		c.JSON(http.StatusOK, user.Info())
	})
}
