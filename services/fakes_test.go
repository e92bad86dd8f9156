package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"elearning-platform/internal/ai"
	"elearning-platform/internal/auth"
	"elearning-platform/internal/rag"
	"elearning-platform/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// topicEmbedder maps text onto "photosynthesis", "revolution" and "market"
// axes by keyword counts.
type topicEmbedder struct {
	fail bool
}

func (e *topicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, &rag.EmbeddingUnavailableError{Err: fmt.Errorf("provider down")}
	}
	lower := strings.ToLower(text)
	vec := []float32{
		float32(strings.Count(lower, "photosynthesis")),
		float32(strings.Count(lower, "revolution")),
		float32(strings.Count(lower, "market")),
	}
	if vec[0]+vec[1]+vec[2] == 0 {
		vec = []float32{0.01, 0.01, 0.01}
	}
	return vec, nil
}

func testRAGConfig() rag.Config {
	cfg := rag.DefaultConfig(3)
	cfg.ChunkSize = 60
	cfg.ChunkOverlap = 10
	// above the 0.577 similarity of keyword-free filler vectors
	cfg.SimilarityThreshold = 0.6
	return cfg
}

type memMaterialRepo struct {
	mu   sync.Mutex
	docs map[string]*models.Material
}

func newMemMaterialRepo() *memMaterialRepo {
	return &memMaterialRepo{docs: map[string]*models.Material{}}
}

func (r *memMaterialRepo) Create(_ context.Context, m *models.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = primitive.NewObjectID()
	cp := *m
	r.docs[m.ID.Hex()] = &cp
	return nil
}

func (r *memMaterialRepo) Get(_ context.Context, id string) (*models.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMaterialRepo) List(_ context.Context, subjectID string) ([]models.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Material
	for _, m := range r.docs {
		if subjectID == "" || m.SubjectID == subjectID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memMaterialRepo) Update(_ context.Context, id string, fields bson.M) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.docs[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			m.Status = v.(string)
		case "chunk_count":
			m.ChunkCount = v.(int)
		case "stored_chunks":
			m.StoredChunks = v.(int)
		case "chunk_size":
			m.ChunkSize = v.(int)
		case "chunk_overlap":
			m.ChunkOverlap = v.(int)
		case "error_message":
			m.ErrorMessage = v.(string)
		case "task_id":
			m.TaskID = v.(string)
		case "processed_at":
			t := v.(time.Time)
			m.ProcessedAt = &t
		case "updated_at":
			m.UpdatedAt = v.(time.Time)
		}
	}
	return nil
}

func (r *memMaterialRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *memMaterialRepo) IDs(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeEnqueuer struct {
	err      error
	calls    []string
	chunking [][2]int
}

func (e *fakeEnqueuer) EnqueueIngest(_ context.Context, materialID string, chunkSize, overlap int) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.calls = append(e.calls, materialID)
	e.chunking = append(e.chunking, [2]int{chunkSize, overlap})
	return "task-" + materialID, nil
}

type recordingInvalidator struct {
	scopes []*rag.Scope
}

func (i *recordingInvalidator) InvalidateScope(_ context.Context, scope *rag.Scope) error {
	i.scopes = append(i.scopes, scope)
	return nil
}

type memChatRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.ChatSession
	messages []models.ChatMessage
}

func newMemChatRepo() *memChatRepo {
	return &memChatRepo{sessions: map[string]*models.ChatSession{}}
}

func (r *memChatRepo) CreateSession(_ context.Context, s *models.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = primitive.NewObjectID()
	cp := *s
	r.sessions[s.ID.Hex()] = &cp
	return nil
}

func (r *memChatRepo) GetSession(_ context.Context, id string) (*models.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memChatRepo) ListSessions(_ context.Context, userID string) ([]models.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ChatSession
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memChatRepo) AddMessage(_ context.Context, m *models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = primitive.NewObjectID()
	r.messages = append(r.messages, *m)
	if s, ok := r.sessions[m.SessionID]; ok {
		s.MessageCount++
	}
	return nil
}

func (r *memChatRepo) ListMessages(_ context.Context, sessionID string, limit int64) ([]models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range r.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

type fakeGenerator struct {
	reply     string
	err       error
	prompts   []string
	contexts  []string
	questions []ai.QuizQuestion
}

func (g *fakeGenerator) GenerateChatResponse(_ context.Context, prompt, retrieved, subject string) (string, int, error) {
	g.prompts = append(g.prompts, prompt)
	g.contexts = append(g.contexts, retrieved)
	if g.err != nil {
		return "", 0, g.err
	}
	return g.reply, 42, nil
}

func (g *fakeGenerator) GenerateQuiz(_ context.Context, material string, n int, difficulty string) ([]ai.QuizQuestion, int, error) {
	g.contexts = append(g.contexts, material)
	if g.err != nil {
		return nil, 0, g.err
	}
	return g.questions, 100, nil
}

type fakeQuota struct {
	limit int
	used  int
}

func (q *fakeQuota) Consume(_ context.Context, userID string, tokens int) error {
	if q.used+tokens > q.limit {
		return ai.ErrQuotaExceeded
	}
	q.used += tokens
	return nil
}

func (q *fakeQuota) Status(_ context.Context, userID string) (*ai.UserAIQuota, error) {
	return &ai.UserAIQuota{UserID: userID, DailyTokenLimit: q.limit, TokensUsedToday: q.used}, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]*models.User{}}
}

func (r *memUserRepo) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	u.ID = primitive.NewObjectID()
	cp := *u
	r.users[u.ID.Hex()] = &cp
	return nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) TouchLogin(_ context.Context, id primitive.ObjectID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id.Hex()]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (r *memUserRepo) List(_ context.Context, skip, limit int64) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if skip >= int64(len(all)) {
		return []models.User{}, nil
	}
	all = all[skip:]
	if limit > 0 && limit < int64(len(all)) {
		all = all[:limit]
	}
	return all, nil
}

type memJTIStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memJTIStore) Save(_ context.Context, key, userID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = userID
	return nil
}

func (m *memJTIStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *memJTIStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memJTIStore) DeleteUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.keys {
		if v == userID {
			delete(m.keys, k)
		}
	}
	return nil
}

func newTestTokenService() *auth.TokenService {
	svc, err := auth.NewTokenService(strings.Repeat("a", 32), strings.Repeat("b", 32),
		time.Hour, 24*time.Hour, &memJTIStore{keys: map[string]string{}})
	if err != nil {
		panic(err)
	}
	return svc
}
