package routes

import (
	"context"
	"net/http"
	"time"

	"elearning-platform/internal/config"
	"elearning-platform/internal/telemetry"
	"elearning-platform/middleware"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Config    *config.Config
	Tokens    middleware.TokenValidator
	Auth      AuthAPI
	Courses   CourseAPI
	Exercises ExerciseAPI
	Materials MaterialAPI
	Chat      ChatAPI
	Quiz      QuizAPI
	Quota     QuotaAPI
	// Optional
	Reconciler Reconciler
	Limiter    middleware.WindowCounter
	Metrics    *telemetry.Metrics
	Health     map[string]HealthCheck
	Tracing    bool
}

// multipartSlack covers form fields and boundaries around an upload.
const multipartSlack = 1 << 20

func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if d.Tracing {
		router.Use(middleware.TracingMiddleware(cfg.ServiceName))
	}
	router.Use(middleware.MetricsMiddleware(d.Metrics))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	router.GET("/health", healthHandler(d.Health))

	authMiddleware := middleware.NewAuthMiddleware(d.Tokens)
	roleMiddleware := middleware.NewRoleMiddleware()

	api := router.Group("/api/v1")
	api.Use(middleware.RequestSizeLimit(cfg.MaxFileSize + multipartSlack))
	api.Use(authMiddleware.OptionalAuth(), middleware.EnrichTrace())

	var chatLimit, aiLimit gin.HandlerFunc
	if d.Limiter != nil {
		window := time.Duration(cfg.RateLimitWindow) * time.Second
		api.Use(middleware.RateLimit(d.Limiter, "api", cfg.RateLimitReqs, window))
		chatLimit = middleware.RateLimit(d.Limiter, "chat", cfg.ChatRateLimit, window)
		aiLimit = middleware.RateLimit(d.Limiter, "ai", cfg.AIRateLimit, window)
	}

	SetupAuthRoutes(api, d.Auth, authMiddleware)
	SetupCourseRoutes(api, d.Courses, authMiddleware, roleMiddleware)
	SetupExerciseRoutes(api, d.Exercises, d.Auth, authMiddleware, roleMiddleware)
	SetupMaterialRoutes(api, d.Materials, cfg.MaxFileSize, authMiddleware, roleMiddleware)
	SetupChatRoutes(api, d.Chat, chatLimit, authMiddleware, roleMiddleware)
	SetupAIRoutes(api, d.Quiz, d.Quota, aiLimit, authMiddleware, roleMiddleware)
	SetupAdminRoutes(api, d.Auth, d.Quota, d.Reconciler, authMiddleware, roleMiddleware)

	return router
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		components := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				components[name] = err.Error()
				continue
			}
			components[name] = "ok"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "components": components, "timestamp": time.Now().UTC()})
	}
}
