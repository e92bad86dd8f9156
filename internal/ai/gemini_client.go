package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"elearning-platform/internal/telemetry"
)

var (
	ErrRateLimited    = errors.New("ai: rate limit exceeded, wait before retry")
	ErrContentBlocked = errors.New("ai: request blocked by content policy")
	ErrEmptyResponse  = errors.New("ai: empty response")
	ErrUnavailable    = errors.New("ai: service temporarily unavailable")
)

// generateRequest is one prompt sent to the model.
type generateRequest struct {
	System   string
	Prompt   string
	JSONMode bool
}

type generateFunc func(ctx context.Context, req generateRequest) (text string, tokens int, err error)

// GeminiClient generates tutoring answers and quizzes. Failures are returned
// to the caller; there are no canned fallback answers.
type GeminiClient struct {
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
	client       *genai.Client
	generate     generateFunc
	modelName    string
	logger       *slog.Logger
	metrics      *telemetry.Metrics
}

type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
	now             func() time.Time
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

// QuizQuestion is one generated question. CorrectAnswer is always one of
// Options for multiple_choice and true_false questions.
type QuizQuestion struct {
	Question      string   `json:"question" bson:"question"`
	Type          string   `json:"type" bson:"type"`
	Options       []string `json:"options,omitempty" bson:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer" bson:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty" bson:"explanation,omitempty"`
	Difficulty    int      `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
}

const tutorSystemPrompt = `You are an AI teaching assistant for an e-learning platform. Your role is to:
1. Help students learn and understand concepts
2. Provide educational support and guidance
3. Encourage critical thinking and learning
4. Stay within the educational context

Guidelines:
- Only discuss topics related to education and learning
- Do not help with cheating, plagiarism, or academic dishonesty
- Do not provide answers to tests or assignments directly
- Encourage students to think and learn independently
- Be helpful, patient, and encouraging`

func NewGeminiClient(apiKey, model, tier string, logger *slog.Logger) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	gc := newGeminiClient(model, getRateLimits(tier), logger)
	gc.client = client
	gc.generate = gc.callModel
	return gc, nil
}

func newGeminiClient(model string, limits RateLimits, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	gc := &GeminiClient{
		// RPM limit with some buffer
		rateLimiter:  rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), max(limits.RPM/10, 1)),
		tokenCounter: NewTokenCounter(limits),
		modelName:    model,
		logger:       logger,
	}
	gc.breaker = newBreaker("GeminiAPI", logger, gc.recordState)
	return gc
}

// SetMetrics reports breaker state changes to m. Call it before first use.
func (gc *GeminiClient) SetMetrics(m *telemetry.Metrics) { gc.metrics = m }

func (gc *GeminiClient) recordState(name, state string) {
	gc.metrics.RecordCircuitBreakerState(context.Background(), name, state)
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// GenerateChatResponse answers a learner's question using the retrieved
// context and, when set, keeps the answer on the given subject.
func (gc *GeminiClient) GenerateChatResponse(ctx context.Context, prompt, retrieved, subject string) (string, int, error) {
	return gc.do(ctx, "gemini.chat", generateRequest{
		System: buildSystemPrompt(retrieved, subject),
		Prompt: "User: " + prompt,
	})
}

// GenerateQuiz asks the model for n questions grounded in material.
func (gc *GeminiClient) GenerateQuiz(ctx context.Context, material string, n int, difficulty string) ([]QuizQuestion, int, error) {
	if n <= 0 {
		n = 5
	}
	if difficulty == "" {
		difficulty = "medium"
	}
	text, tokens, err := gc.do(ctx, "gemini.quiz", generateRequest{
		System:   tutorSystemPrompt,
		Prompt:   buildQuizPrompt(material, n, difficulty),
		JSONMode: true,
	})
	if err != nil {
		return nil, tokens, err
	}
	questions, err := parseQuizQuestions(text)
	if err != nil {
		return nil, tokens, err
	}
	if len(questions) > n {
		questions = questions[:n]
	}
	return questions, tokens, nil
}

func (gc *GeminiClient) do(ctx context.Context, spanName string, req generateRequest) (string, int, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	// Estimate tokens BEFORE making request
	estimatedTokens := EstimateTokens(req.System, req.Prompt)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.String("gemini.model", gc.modelName),
	)

	if !gc.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", 0, ErrRateLimited
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", 0, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	type generated struct {
		text   string
		tokens int
	}
	result, err := gc.breaker.Execute(func() (interface{}, error) {
		text, tokens, err := gc.generate(ctx, req)
		if err != nil {
			return nil, err
		}
		return generated{text, tokens}, nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", 0, err
	}

	out := result.(generated)
	if out.tokens <= 0 {
		out.tokens = max(len(out.text)/4, 1)
	}
	gc.tokenCounter.RecordUsage(out.tokens, 1)
	span.SetAttributes(attribute.Int("gemini.actual_tokens", out.tokens))
	return out.text, out.tokens, nil
}

func (gc *GeminiClient) callModel(ctx context.Context, req generateRequest) (string, int, error) {
	model := gc.client.GenerativeModel(gc.modelName)
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(2048)
	model.SafetySettings = safetySettings()
	model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", 0, ErrContentBlocked
		}
		return "", 0, err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", 0, ErrContentBlocked
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", 0, ErrEmptyResponse
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return text, tokens, nil
}

func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockMediumAndAbove})
	}
	return settings
}

func NewTokenCounter(limits RateLimits) *TokenCounter {
	return &TokenCounter{limits: limits, now: time.Now}
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := tc.now()

	// Reset counters if time windows expired
	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}

	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}

	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// EstimateTokens uses the rough 4 characters per token ratio.
func EstimateTokens(parts ...string) int {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	return n / 4
}

func extractText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		// Only the first candidate is used.
		break
	}
	return sb.String()
}

func buildSystemPrompt(retrieved, subject string) string {
	var sb strings.Builder
	sb.WriteString(tutorSystemPrompt)
	if subject != "" {
		sb.WriteString("\n- Focus on the subject: ")
		sb.WriteString(subject)
	}
	if retrieved != "" {
		sb.WriteString("\n- Use this context from the course material to inform your responses:\n\n")
		sb.WriteString(retrieved)
	}
	return sb.String()
}

func buildQuizPrompt(material string, n int, difficulty string) string {
	return fmt.Sprintf(`Generate %d quiz questions based on the following material.
Difficulty level: %s

Material:
%s

Return the questions as a JSON array with the following structure:
[
  {
    "question": "Question text",
    "type": "multiple_choice",
    "options": ["Option 1", "Option 2", "Option 3", "Option 4"],
    "correct_answer": "Option 1",
    "explanation": "Explanation of the correct answer",
    "difficulty": 3
  }
]

Question types: multiple_choice, true_false, short_answer. Difficulty is 1-5.`, n, difficulty, material)
}

// parseQuizQuestions accepts a bare JSON array, optionally wrapped in a
// markdown code fence, and drops malformed questions.
func parseQuizQuestions(text string) ([]QuizQuestion, error) {
	raw := stripCodeFence(text)

	var questions []QuizQuestion
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		var wrapped struct {
			Questions []QuizQuestion `json:"questions"`
		}
		if err2 := json.Unmarshal([]byte(raw), &wrapped); err2 != nil || wrapped.Questions == nil {
			return nil, fmt.Errorf("ai: decode quiz: %w", err)
		}
		questions = wrapped.Questions
	}

	valid := questions[:0]
	for _, q := range questions {
		if q.Question == "" || q.CorrectAnswer == "" {
			continue
		}
		switch q.Type {
		case "multiple_choice", "true_false":
			if !slices.Contains(q.Options, q.CorrectAnswer) {
				continue
			}
		case "short_answer":
		default:
			continue
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		return nil, ErrEmptyResponse
	}
	return valid, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
