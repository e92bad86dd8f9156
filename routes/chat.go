package routes

import (
	"context"
	"net/http"

	"elearning-platform/internal/ai"
	"elearning-platform/middleware"
	"elearning-platform/models"

	"github.com/gin-gonic/gin"
)

// ChatAPI is satisfied by *services.ChatService.
type ChatAPI interface {
	CreateSession(ctx context.Context, userID string, req models.CreateSessionRequest) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error)
	Messages(ctx context.Context, userID, sessionID string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, userID, sessionID, text string) (*models.ChatResponse, error)
}

// QuizAPI is satisfied by *services.QuizService.
type QuizAPI interface {
	Generate(ctx context.Context, userID string, req models.QuizRequest) ([]ai.QuizQuestion, error)
}

// QuotaAPI is satisfied by *ai.QuotaService.
type QuotaAPI interface {
	Status(ctx context.Context, userID string) (*ai.UserAIQuota, error)
	SetLimit(ctx context.Context, userID string, dailyLimit int) error
}

// SetupChatRoutes registers tutoring sessions. messageLimit guards the
// model-backed endpoint and may be nil.
func SetupChatRoutes(api *gin.RouterGroup, svc ChatAPI, messageLimit gin.HandlerFunc, authMiddleware *middleware.AuthMiddleware, roleMiddleware *middleware.RoleMiddleware) {
	chat := api.Group("/chat")
	chat.Use(authMiddleware.RequireAuth(), roleMiddleware.StudentGuard())

	chat.POST("/sessions", func(c *gin.Context) {
		var req models.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		session, err := svc.CreateSession(c.Request.Context(), middleware.GetUserID(c), req)
		if err != nil {
			respondServiceError(c, err, "Failed to create session")
			return
		}
		c.JSON(http.StatusCreated, session)
	})

	chat.GET("/sessions", func(c *gin.Context) {
		sessions, err := svc.ListSessions(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			respondServiceError(c, err, "Failed to list sessions")
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
	})

	chat.GET("/sessions/:id/messages", func(c *gin.Context) {
		messages, err := svc.Messages(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to load messages")
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
	})

	send := []gin.HandlerFunc{}
	if messageLimit != nil {
		send = append(send, messageLimit)
	}
	send = append(send, func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		resp, err := svc.SendMessage(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Message)
		if err != nil {
			respondServiceError(c, err, "Failed to generate reply")
			return
		}
		c.JSON(http.StatusOK, resp)
	})
	chat.POST("/sessions/:id/messages", send...)
}

// SetupAIRoutes registers quiz generation and quota status. quizLimit may be nil.
func SetupAIRoutes(api *gin.RouterGroup, quiz QuizAPI, quota QuotaAPI, quizLimit gin.HandlerFunc, authMiddleware *middleware.AuthMiddleware, roleMiddleware *middleware.RoleMiddleware) {
	aiGroup := api.Group("/ai")
	aiGroup.Use(authMiddleware.RequireAuth(), roleMiddleware.StudentGuard())

	handlers := []gin.HandlerFunc{}
	if quizLimit != nil {
		handlers = append(handlers, quizLimit)
	}
	handlers = append(handlers, func(c *gin.Context) {
		var req models.QuizRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		questions, err := quiz.Generate(c.Request.Context(), middleware.GetUserID(c), req)
		if err != nil {
			respondServiceError(c, err, "Failed to generate quiz")
			return
		}
		c.JSON(http.StatusOK, gin.H{"questions": questions, "count": len(questions)})
	})
	aiGroup.POST("/quiz", handlers...)

	aiGroup.GET("/quota", func(c *gin.Context) {
		status, err := quota.Status(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			respondServiceError(c, err, "Failed to load quota")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"daily_limit": status.DailyTokenLimit,
			"used_today":  status.TokensUsedToday,
			"remaining":   max(status.DailyTokenLimit-status.TokensUsedToday, 0),
		})
	})
}
