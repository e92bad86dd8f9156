package middleware

import (
	"context"
	"net/http"
	"strings"

	"elearning-platform/internal/auth"
	"elearning-platform/utils"

	"github.com/gin-gonic/gin"
)

// TokenValidator is satisfied by *auth.TokenService.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, tokenString string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// OptionalAuth earlier in the chain already validated this request's token
		if IsAuthenticated(c) {
			c.Next()
			return
		}

		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			c.Abort()
			return
		}

		claims, err := a.tokens.ValidateAccessToken(c.Request.Context(), tokenString)
		if err != nil {
			utils.RespondWithError(c, http.StatusUnauthorized, "session_expired",
				"Your session has expired. Please log in again.", gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

func (a *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := tokenFromRequest(c); tokenString != "" {
			if claims, err := a.tokens.ValidateAccessToken(c.Request.Context(), tokenString); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// tokenFromRequest reads the bearer token, falling back to the access_token cookie.
func tokenFromRequest(c *gin.Context) string {
	if tokenString := ExtractTokenFromHeader(c.GetHeader("Authorization")); tokenString != "" {
		return tokenString
	}
	if cookie, err := c.Cookie("access_token"); err == nil {
		return cookie
	}
	return ""
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set("user_id", claims.UserID)
	c.Set("role", claims.Role)
	c.Set("claims", claims)
}

func ExtractTokenFromHeader(authHeader string) string {
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || scheme != "Bearer" {
		return ""
	}
	return strings.TrimSpace(token)
}

// Helper function to check if request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get("user_id")
	return exists
}

// Helper function to get user ID from context
func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// Helper function to get role from context
func GetRole(c *gin.Context) string {
	return c.GetString("role")
}

// GetClaims returns the validated token claims, or nil.
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get("claims"); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}
