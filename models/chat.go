package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SessionTypeLearning = "learning"
	SessionTypeDebate   = "debate"
	SessionTypeQA       = "qa"

	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

type ChatSession struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID        string             `bson:"user_id" json:"user_id"`
	Title         string             `bson:"title,omitempty" json:"title,omitempty"`
	SessionType   string             `bson:"session_type" json:"session_type"`
	SubjectFilter string             `bson:"subject_filter,omitempty" json:"subject_filter,omitempty"`
	IsActive      bool               `bson:"is_active" json:"is_active"`
	MessageCount  int                `bson:"message_count" json:"message_count"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

type ChatMessage struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Role      string             `bson:"role" json:"role"`
	Content   string             `bson:"content" json:"content"`
	// Sources lists the chunk ids that grounded an assistant reply.
	Sources   []string  `bson:"sources,omitempty" json:"sources,omitempty"`
	TokenCost int       `bson:"token_cost,omitempty" json:"token_cost,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type CreateSessionRequest struct {
	Title         string `json:"title" binding:"max=200"`
	SessionType   string `json:"session_type" binding:"omitempty,oneof=learning debate qa"`
	SubjectFilter string `json:"subject_filter" binding:"max=50"`
}

type ChatRequest struct {
	Message string `json:"message" binding:"required,min=1,max=2000"`
}

type ChatResponse struct {
	Reply           string      `json:"reply"`
	SessionID       string      `json:"session_id"`
	Sources         []string    `json:"sources,omitempty"`
	TokensUsed      int         `json:"tokens_used"`
	RemainingTokens int         `json:"remaining_tokens"`
	UserMessage     ChatMessage `json:"user_message"`
	Timestamp       time.Time   `json:"timestamp"`
}

type QuizRequest struct {
	MaterialID   string `json:"material_id" binding:"required_without=LessonID"`
	LessonID     string `json:"lesson_id" binding:"required_without=MaterialID"`
	NumQuestions int    `json:"num_questions" binding:"omitempty,min=1,max=20"`
	Difficulty   string `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
}
