package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"elearning-platform/internal/ai"
	"elearning-platform/internal/auth"
	"elearning-platform/internal/rag"
	"elearning-platform/middleware"
	"elearning-platform/services"
	"elearning-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var serviceErrors = []errorMapping{
	{services.ErrNotFound, http.StatusNotFound, "not_found", "Resource not found"},
	{services.ErrInvalidID, http.StatusBadRequest, "invalid_id", "Invalid ID format"},
	{services.ErrForbidden, http.StatusForbidden, "forbidden", "Access denied"},
	{services.ErrEmailTaken, http.StatusConflict, "email_exists", "Email is already registered"},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"},
	{utils.ErrPasswordTooLong, http.StatusBadRequest, "password_too_long", "Password must be at most 72 bytes"},
	{services.ErrInactiveUser, http.StatusForbidden, "account_disabled", "Account is disabled"},
	{services.ErrAlreadyEnrolled, http.StatusConflict, "already_enrolled", "Already enrolled in this course"},
	{services.ErrNotEnrolled, http.StatusNotFound, "not_enrolled", "Not enrolled in this course"},
	{services.ErrMaxAttempts, http.StatusConflict, "max_attempts_reached", "Maximum number of attempts reached"},
	{services.ErrNoQuestions, http.StatusUnprocessableEntity, "no_questions", "Exercise has no questions"},
	{services.ErrInvalidQuestion, http.StatusBadRequest, "invalid_question", "Invalid question"},
	{services.ErrEmptyMaterial, http.StatusUnprocessableEntity, "empty_material", "Material has no text content"},
	{services.ErrNoExtractableText, http.StatusUnprocessableEntity, "empty_material", "PDF contains no extractable text"},
	{ai.ErrQuotaExceeded, http.StatusTooManyRequests, "quota_exceeded", "Daily AI quota exceeded"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "Invalid token"},
	{auth.ErrRevokedToken, http.StatusUnauthorized, "invalid_token", "Token revoked or expired"},
	{rag.ErrConfiguration, http.StatusBadRequest, "configuration_error", "Invalid retrieval parameters"},
	{rag.ErrIngestionFailed, http.StatusBadGateway, "ingestion_failed", "Material ingestion failed"},
	{rag.ErrEmbeddingUnavailable, http.StatusServiceUnavailable, "embedding_unavailable", "Embedding service is unavailable"},
	{rag.ErrPersistence, http.StatusServiceUnavailable, "persistence_error", "Vector store is unavailable"},
	// After the rag rows: an embedding outage wraps the breaker error too.
	{gobreaker.ErrOpenState, http.StatusServiceUnavailable, "ai_unavailable", "AI service is temporarily unavailable"},
	{gobreaker.ErrTooManyRequests, http.StatusServiceUnavailable, "ai_unavailable", "AI service is temporarily unavailable"},
	{rag.ErrDimensionMismatch, http.StatusInternalServerError, "dimension_mismatch", "Embedding dimension mismatch"},
}

// respondServiceError maps a service error onto the API error format.
// Unknown errors become 500s and are logged.
func respondServiceError(c *gin.Context, err error, fallback string) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			var details any
			if m.status == http.StatusBadRequest || m.status == http.StatusBadGateway {
				details = gin.H{"error": err.Error()}
			}
			utils.RespondWithError(c, m.status, m.code, m.message, details)
			return
		}
	}
	slog.Error(fallback, "error", err, "path", c.FullPath(), "request_id", middleware.GetRequestID(c))
	utils.RespondWithInternalError(c, fallback)
}

func respondBindError(c *gin.Context, err error) {
	utils.RespondWithError(c, http.StatusBadRequest, "invalid_input", "Invalid request data", gin.H{"error": err.Error()})
}
