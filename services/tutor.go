package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"elearning-platform/internal/ai"
	"elearning-platform/internal/rag"
	"elearning-platform/internal/telemetry"
	"elearning-platform/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const historyWindow = 6

type ChatRepository interface {
	CreateSession(ctx context.Context, s *models.ChatSession) error
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error)
	AddMessage(ctx context.Context, m *models.ChatMessage) error
	// ListMessages returns the newest limit messages in chronological order;
	// limit <= 0 returns all.
	ListMessages(ctx context.Context, sessionID string, limit int64) ([]models.ChatMessage, error)
}

// ChatGenerator is satisfied by *ai.GeminiClient.
type ChatGenerator interface {
	GenerateChatResponse(ctx context.Context, prompt, retrieved, subject string) (string, int, error)
}

// QuizGenerator is satisfied by *ai.GeminiClient.
type QuizGenerator interface {
	GenerateQuiz(ctx context.Context, material string, n int, difficulty string) ([]ai.QuizQuestion, int, error)
}

// QuotaLedger is satisfied by *ai.QuotaService.
type QuotaLedger interface {
	Consume(ctx context.Context, userID string, tokens int) error
	Status(ctx context.Context, userID string) (*ai.UserAIQuota, error)
}

type MongoChatRepository struct {
	sessions *mongo.Collection
	messages *mongo.Collection
}

func NewMongoChatRepository(db *mongo.Database) *MongoChatRepository {
	return &MongoChatRepository{
		sessions: db.Collection("chat_sessions"),
		messages: db.Collection("chat_messages"),
	}
}

func (r *MongoChatRepository) CreateSession(ctx context.Context, s *models.ChatSession) error {
	res, err := r.sessions.InsertOne(ctx, s)
	if err != nil {
		return err
	}
	s.ID = insertedID(res)
	return nil
}

func (r *MongoChatRepository) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var s models.ChatSession
	if err := r.sessions.FindOne(ctx, bson.M{"_id": oid}).Decode(&s); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *MongoChatRepository) ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error) {
	cursor, err := r.sessions.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}).SetLimit(100))
	if err != nil {
		return nil, err
	}
	sessions := []models.ChatSession{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *MongoChatRepository) AddMessage(ctx context.Context, m *models.ChatMessage) error {
	res, err := r.messages.InsertOne(ctx, m)
	if err != nil {
		return err
	}
	m.ID = insertedID(res)

	sid, err := objectID(m.SessionID)
	if err != nil {
		return err
	}
	_, err = r.sessions.UpdateByID(ctx, sid, bson.M{
		"$inc": bson.M{"message_count": 1},
		"$set": bson.M{"updated_at": m.Timestamp},
	})
	return err
}

func (r *MongoChatRepository) ListMessages(ctx context.Context, sessionID string, limit int64) ([]models.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := r.messages.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	messages := []models.ChatMessage{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	// newest first from the query; flip to chronological
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ChatService runs tutoring conversations grounded in retrieved material.
type ChatService struct {
	repo      ChatRepository
	querier   Querier
	generator ChatGenerator
	quota     QuotaLedger
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	model     string
	now       func() time.Time
}

func NewChatService(repo ChatRepository, querier Querier, generator ChatGenerator, quota QuotaLedger, metrics *telemetry.Metrics, model string, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		repo:      repo,
		querier:   querier,
		generator: generator,
		quota:     quota,
		metrics:   metrics,
		logger:    logger,
		model:     model,
		now:       time.Now,
	}
}

func (s *ChatService) CreateSession(ctx context.Context, userID string, req models.CreateSessionRequest) (*models.ChatSession, error) {
	sessionType := req.SessionType
	if sessionType == "" {
		sessionType = models.SessionTypeLearning
	}
	now := s.now().UTC()
	session := &models.ChatSession{
		UserID:        userID,
		Title:         req.Title,
		SessionType:   sessionType,
		SubjectFilter: req.SubjectFilter,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	return session, nil
}

func (s *ChatService) ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error) {
	return s.repo.ListSessions(ctx, userID)
}

// Messages returns the session history if userID owns the session.
func (s *ChatService) Messages(ctx context.Context, userID, sessionID string) ([]models.ChatMessage, error) {
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, sessionID, 0)
}

// SendMessage stores the learner's message, retrieves context for it, asks
// the model and stores the reply. The prompt's estimated tokens are charged
// to the user's daily quota before the model is called.
func (s *ChatService) SendMessage(ctx context.Context, userID, sessionID, text string) (*models.ChatResponse, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, ErrForbidden
	}

	qr := rag.QueryRequest{QueryText: text}
	if session.SubjectFilter != "" {
		qr.Scope = &rag.Scope{Key: ScopeKey, Value: session.SubjectFilter}
	}
	start := time.Now()
	retrieved, err := s.querier.Query(ctx, qr)
	if err != nil {
		return nil, fmt.Errorf("context retrieval failed: %w", err)
	}
	s.metrics.RecordQuery(ctx, time.Since(start).Seconds(), len(retrieved.Results), "chat")

	history, err := s.repo.ListMessages(ctx, sessionID, historyWindow)
	if err != nil {
		return nil, err
	}
	prompt := buildConversationPrompt(history, text)

	if err := s.quota.Consume(ctx, userID, ai.EstimateTokens(prompt, retrieved.Context)); err != nil {
		return nil, err
	}

	userMsg := &models.ChatMessage{
		SessionID: sessionID,
		UserID:    userID,
		Role:      models.MessageRoleUser,
		Content:   text,
		Timestamp: s.now().UTC(),
	}
	if err := s.repo.AddMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	reply, tokens, err := s.generator.GenerateChatResponse(ctx, prompt, retrieved.Context, session.SubjectFilter)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTokensUsed(ctx, int64(tokens), s.model, "chat")

	sources := make([]string, 0, len(retrieved.Results))
	for _, r := range retrieved.Results {
		sources = append(sources, r.ChunkID)
	}
	assistantMsg := &models.ChatMessage{
		SessionID: sessionID,
		UserID:    userID,
		Role:      models.MessageRoleAssistant,
		Content:   reply,
		Sources:   sources,
		TokenCost: tokens,
		Timestamp: s.now().UTC(),
	}
	if err := s.repo.AddMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store reply: %w", err)
	}

	resp := &models.ChatResponse{
		Reply:       reply,
		SessionID:   sessionID,
		Sources:     sources,
		TokensUsed:  tokens,
		UserMessage: *userMsg,
		Timestamp:   assistantMsg.Timestamp,
	}
	if status, err := s.quota.Status(ctx, userID); err == nil {
		resp.RemainingTokens = max(status.DailyTokenLimit-status.TokensUsedToday, 0)
	}
	return resp, nil
}

func (s *ChatService) ownedSession(ctx context.Context, userID, sessionID string) (*models.ChatSession, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		// Hide other users' sessions.
		return nil, ErrNotFound
	}
	return session, nil
}

func buildConversationPrompt(history []models.ChatMessage, message string) string {
	if len(history) == 0 {
		return message
	}
	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, m := range history {
		role := "User"
		if m.Role == models.MessageRoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, m.Content)
	}
	sb.WriteString("\nCurrent question: ")
	sb.WriteString(message)
	return sb.String()
}

// LessonReader loads lesson content for quiz generation.
type LessonReader interface {
	GetLesson(ctx context.Context, id string) (*models.Lesson, error)
}

// MaterialReader loads material content for quiz generation.
type MaterialReader interface {
	Get(ctx context.Context, id string) (*models.Material, error)
}

// QuizService generates practice questions from stored course content.
type QuizService struct {
	materials MaterialReader
	lessons   LessonReader
	generator QuizGenerator
	quota     QuotaLedger
	metrics   *telemetry.Metrics
	model     string
}

func NewQuizService(materials MaterialReader, lessons LessonReader, generator QuizGenerator, quota QuotaLedger, metrics *telemetry.Metrics, model string) *QuizService {
	return &QuizService{
		materials: materials,
		lessons:   lessons,
		generator: generator,
		quota:     quota,
		metrics:   metrics,
		model:     model,
	}
}

// maxQuizSource bounds the material sent to the model.
const maxQuizSource = 12000

func (s *QuizService) Generate(ctx context.Context, userID string, req models.QuizRequest) ([]ai.QuizQuestion, error) {
	var source string
	switch {
	case req.MaterialID != "":
		m, err := s.materials.Get(ctx, req.MaterialID)
		if err != nil {
			return nil, err
		}
		source = m.Content
	case req.LessonID != "":
		l, err := s.lessons.GetLesson(ctx, req.LessonID)
		if err != nil {
			return nil, err
		}
		source = l.Content
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrEmptyMaterial
	}
	if r := []rune(source); len(r) > maxQuizSource {
		source = string(r[:maxQuizSource])
	}

	if err := s.quota.Consume(ctx, userID, ai.EstimateTokens(source)); err != nil {
		return nil, err
	}
	questions, tokens, err := s.generator.GenerateQuiz(ctx, source, req.NumQuestions, req.Difficulty)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTokensUsed(ctx, int64(tokens), s.model, "quiz")
	return questions, nil
}

// IsQuotaError reports whether err means the caller's AI budget is spent.
func IsQuotaError(err error) bool {
	return errors.Is(err, ai.ErrQuotaExceeded)
}
