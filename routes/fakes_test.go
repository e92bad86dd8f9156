package routes

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"elearning-platform/internal/ai"
	"elearning-platform/internal/auth"
	"elearning-platform/internal/config"
	"elearning-platform/internal/rag"
	"elearning-platform/models"
	"elearning-platform/services"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeTokens accepts tokens of the form "<role>:<user id>".
type fakeTokens struct{}

func (fakeTokens) ValidateAccessToken(_ context.Context, token string) (*auth.Claims, error) {
	role, userID, ok := strings.Cut(token, ":")
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	claims := &auth.Claims{UserID: userID, Role: role}
	claims.ID = "jti-" + userID
	return claims, nil
}

type fakeAuth struct {
	users map[string]*models.User
}

func (f *fakeAuth) Register(_ context.Context, req models.RegisterRequest) (*models.User, *auth.TokenPair, error) {
	for _, u := range f.users {
		if u.Email == req.Email {
			return nil, nil, services.ErrEmailTaken
		}
	}
	u := &models.User{ID: primitive.NewObjectID(), Email: req.Email, FullName: req.FullName, Role: models.RoleStudent, IsActive: true}
	f.users[u.ID.Hex()] = u
	return u, &auth.TokenPair{AccessToken: "student:" + u.ID.Hex(), RefreshToken: "r"}, nil
}

func (f *fakeAuth) Login(_ context.Context, req models.LoginRequest) (*models.User, *auth.TokenPair, error) {
	for _, u := range f.users {
		if u.Email == req.Email && req.Password == "secret-password" {
			return u, &auth.TokenPair{AccessToken: u.Role + ":" + u.ID.Hex(), RefreshToken: "r"}, nil
		}
	}
	return nil, nil, services.ErrInvalidCredentials
}

func (f *fakeAuth) Refresh(_ context.Context, token string) (*auth.TokenPair, error) {
	if token != "r" {
		return nil, auth.ErrRevokedToken
	}
	return &auth.TokenPair{AccessToken: "a", RefreshToken: "r2"}, nil
}

func (f *fakeAuth) Logout(context.Context, *auth.Claims, bool) error { return nil }

func (f *fakeAuth) Me(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeAuth) ListUsers(_ context.Context, skip, limit int64) ([]models.UserInfo, error) {
	ids := make([]string, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := []models.UserInfo{}
	for i, id := range ids {
		if int64(i) < skip || (limit > 0 && int64(len(out)) >= limit) {
			continue
		}
		out = append(out, f.users[id].Info())
	}
	return out, nil
}

type fakeCourses struct {
	mu       sync.Mutex
	courses  map[string]*models.Course
	lessons  map[string]*models.Lesson
	enrolled map[string]bool
}

func newFakeCourses() *fakeCourses {
	return &fakeCourses{courses: map[string]*models.Course{}, lessons: map[string]*models.Lesson{}, enrolled: map[string]bool{}}
}

func (f *fakeCourses) add(instructorID string, published bool) *models.Course {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &models.Course{ID: primitive.NewObjectID(), Title: "Biology", InstructorID: instructorID, IsPublished: published}
	f.courses[c.ID.Hex()] = c
	return c
}

func (f *fakeCourses) Create(_ context.Context, instructorID string, req models.CreateCourseRequest) (*models.Course, error) {
	c := f.add(instructorID, req.IsPublished)
	c.Title = req.Title
	return c, nil
}

func (f *fakeCourses) Get(_ context.Context, id string) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.courses[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeCourses) List(_ context.Context, filter models.CourseFilter) ([]models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Course{}
	for _, c := range f.courses {
		if filter.PublishedOnly && !c.IsPublished {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCourses) Update(ctx context.Context, id string, req models.UpdateCourseRequest) (*models.Course, error) {
	f.mu.Lock()
	if c, ok := f.courses[id]; ok && req.Title != nil {
		c.Title = *req.Title
	}
	f.mu.Unlock()
	return f.Get(ctx, id)
}

func (f *fakeCourses) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.courses, id)
	return nil
}

func (f *fakeCourses) CreateLesson(_ context.Context, courseID string, req models.CreateLessonRequest) (*models.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &models.Lesson{ID: primitive.NewObjectID(), CourseID: courseID, Title: req.Title, IsPublished: req.IsPublished}
	f.lessons[l.ID.Hex()] = l
	return l, nil
}

func (f *fakeCourses) ListLessons(_ context.Context, courseID string, publishedOnly bool) ([]models.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Lesson{}
	for _, l := range f.lessons {
		if l.CourseID == courseID && (!publishedOnly || l.IsPublished) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeCourses) GetLesson(_ context.Context, id string) (*models.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.lessons[id]; ok {
		return l, nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeCourses) UpdateLesson(ctx context.Context, id string, _ models.UpdateLessonRequest) (*models.Lesson, error) {
	return f.GetLesson(ctx, id)
}

func (f *fakeCourses) DeleteLesson(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lessons, id)
	return nil
}

func (f *fakeCourses) Enroll(_ context.Context, studentID, courseID string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.courses[courseID]
	if !ok || !c.IsPublished {
		return nil, services.ErrNotFound
	}
	key := studentID + "/" + courseID
	if f.enrolled[key] {
		return nil, services.ErrAlreadyEnrolled
	}
	f.enrolled[key] = true
	return &models.Enrollment{StudentID: studentID, CourseID: courseID, EnrolledAt: time.Now()}, nil
}

func (f *fakeCourses) Unenroll(_ context.Context, studentID, courseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := studentID + "/" + courseID
	if !f.enrolled[key] {
		return services.ErrNotEnrolled
	}
	delete(f.enrolled, key)
	return nil
}

func (f *fakeCourses) IsEnrolled(_ context.Context, studentID, courseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enrolled[studentID+"/"+courseID], nil
}

func (f *fakeCourses) ListEnrollments(_ context.Context, studentID string) ([]models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Enrollment{}
	for key := range f.enrolled {
		if sid, cid, _ := strings.Cut(key, "/"); sid == studentID {
			out = append(out, models.Enrollment{StudentID: sid, CourseID: cid})
		}
	}
	return out, nil
}

type fakeExercises struct {
	exercises   map[string]*models.Exercise
	submissions []models.ExerciseSubmission
}

func (f *fakeExercises) add(createdBy string, published bool) *models.Exercise {
	ex := &models.Exercise{
		ID:           primitive.NewObjectID(),
		Title:        "Cells quiz",
		CreatedBy:    createdBy,
		IsPublished:  published,
		MaxAttempts:  1,
		PassingScore: 50,
		Questions: []models.Question{
			{Question: "Powerhouse of the cell?", Options: []string{"Nucleus", "Mitochondria"}, CorrectAnswer: 1, Explanation: "ATP"},
		},
	}
	f.exercises[ex.ID.Hex()] = ex
	return ex
}

func (f *fakeExercises) Create(_ context.Context, createdBy string, req models.CreateExerciseRequest) (*models.Exercise, error) {
	ex := f.add(createdBy, req.IsPublished)
	ex.Title = req.Title
	return ex, nil
}

func (f *fakeExercises) Get(_ context.Context, id string) (*models.Exercise, error) {
	if ex, ok := f.exercises[id]; ok {
		return ex, nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeExercises) List(_ context.Context, filter models.ExerciseFilter) ([]models.Exercise, error) {
	out := []models.Exercise{}
	for _, ex := range f.exercises {
		if filter.PublishedOnly && !ex.IsPublished {
			continue
		}
		out = append(out, *ex)
	}
	return out, nil
}

func (f *fakeExercises) Update(ctx context.Context, id string, _ models.UpdateExerciseRequest) (*models.Exercise, error) {
	return f.Get(ctx, id)
}

func (f *fakeExercises) Delete(_ context.Context, id string) error {
	delete(f.exercises, id)
	return nil
}

func (f *fakeExercises) Submit(ctx context.Context, exerciseID, studentID string, req models.SubmitExerciseRequest) (*models.ExerciseSubmission, error) {
	ex, err := f.Get(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	attempts := 0
	for _, s := range f.submissions {
		if s.ExerciseID == exerciseID && s.StudentID == studentID {
			attempts++
		}
	}
	if attempts >= ex.MaxAttempts {
		return nil, services.ErrMaxAttempts
	}
	answers, correct, score, passed := services.ScoreSubmission(ex, req.Answers)
	sub := models.ExerciseSubmission{
		ID: primitive.NewObjectID(), ExerciseID: exerciseID, StudentID: studentID, Attempt: attempts + 1,
		Answers: answers, CorrectAnswers: correct, TotalQuestions: len(ex.Questions), Score: score, Passed: passed,
		SubmittedAt: time.Now(),
	}
	f.submissions = append(f.submissions, sub)
	return &sub, nil
}

func (f *fakeExercises) ListSubmissions(_ context.Context, exerciseID, studentID string) ([]models.ExerciseSubmission, error) {
	out := []models.ExerciseSubmission{}
	for _, s := range f.submissions {
		if s.ExerciseID == exerciseID && (studentID == "" || s.StudentID == studentID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeExercises) AddQuestion(ctx context.Context, id string, q models.Question) (*models.Exercise, error) {
	ex, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ex.Questions = append(ex.Questions, q)
	return ex, nil
}

func (f *fakeExercises) UpdateQuestion(ctx context.Context, id string, index int, q models.Question) (*models.Exercise, error) {
	ex, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if index >= len(ex.Questions) {
		return nil, services.ErrNotFound
	}
	ex.Questions[index] = q
	return ex, nil
}

func (f *fakeExercises) DeleteQuestion(ctx context.Context, id string, index int) (*models.Exercise, error) {
	ex, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if index >= len(ex.Questions) {
		return nil, services.ErrNotFound
	}
	ex.Questions = append(ex.Questions[:index], ex.Questions[index+1:]...)
	return ex, nil
}

type fakeMaterials struct {
	created   []services.MaterialUpload
	createErr error
	material  *models.Material
	deleted   []string
	processed [][2]int
	search    *rag.QueryResult
}

func (f *fakeMaterials) Create(_ context.Context, uploaderID string, up services.MaterialUpload) (*models.MaterialResponse, error) {
	f.created = append(f.created, up)
	m := models.Material{ID: primitive.NewObjectID(), Title: up.Request.Title, UploadedBy: uploaderID, Status: models.StatusCompleted}
	if f.createErr != nil {
		m.Status = models.StatusFailed
		return &models.MaterialResponse{Material: m}, f.createErr
	}
	resp := &models.MaterialResponse{Material: m, Stored: 2, Message: "Material ingested"}
	if up.Request.Async {
		resp.Material.Status = models.StatusPending
		resp.TaskID = "ingest:" + m.ID.Hex()
		resp.Stored = 0
	}
	return resp, nil
}

func (f *fakeMaterials) Process(_ context.Context, materialID string, chunkSize, overlap int) (*rag.IngestResult, error) {
	f.processed = append(f.processed, [2]int{chunkSize, overlap})
	return &rag.IngestResult{SourceID: materialID, Total: 2, Stored: 2}, nil
}

func (f *fakeMaterials) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMaterials) Get(_ context.Context, id string) (*models.Material, error) {
	if f.material != nil && f.material.ID.Hex() == id {
		return f.material, nil
	}
	return nil, services.ErrNotFound
}

func (f *fakeMaterials) List(context.Context, string) ([]models.Material, error) {
	if f.material == nil {
		return []models.Material{}, nil
	}
	return []models.Material{*f.material}, nil
}

func (f *fakeMaterials) Search(_ context.Context, req models.SearchRequest) (*rag.QueryResult, error) {
	if f.search != nil {
		return f.search, nil
	}
	return &rag.QueryResult{Results: []rag.SearchResult{}}, nil
}

type fakeChat struct {
	sendErr error
	owner   string
}

func (f *fakeChat) CreateSession(_ context.Context, userID string, req models.CreateSessionRequest) (*models.ChatSession, error) {
	return &models.ChatSession{ID: primitive.NewObjectID(), UserID: userID, SubjectFilter: req.SubjectFilter, SessionType: models.SessionTypeLearning, IsActive: true}, nil
}

func (f *fakeChat) ListSessions(context.Context, string) ([]models.ChatSession, error) {
	return []models.ChatSession{}, nil
}

func (f *fakeChat) Messages(_ context.Context, userID, _ string) ([]models.ChatMessage, error) {
	if userID != f.owner {
		return nil, services.ErrNotFound
	}
	return []models.ChatMessage{}, nil
}

func (f *fakeChat) SendMessage(_ context.Context, userID, sessionID, text string) (*models.ChatResponse, error) {
	if userID != f.owner {
		return nil, services.ErrNotFound
	}
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &models.ChatResponse{Reply: "Echo: " + text, SessionID: sessionID, TokensUsed: 10, RemainingTokens: 90}, nil
}

type fakeQuiz struct{ err error }

func (f fakeQuiz) Generate(context.Context, string, models.QuizRequest) ([]ai.QuizQuestion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []ai.QuizQuestion{{Question: "Q1", Type: "multiple_choice"}}, nil
}

// fakeQuotaStatus reports 130 tokens used against a limit of 100 unless a
// limit was set for the user.
type fakeQuotaStatus struct {
	limits map[string]int
}

func (f *fakeQuotaStatus) Status(_ context.Context, userID string) (*ai.UserAIQuota, error) {
	limit, ok := f.limits[userID]
	if !ok {
		limit = 100
	}
	return &ai.UserAIQuota{UserID: userID, DailyTokenLimit: limit, TokensUsedToday: 130}, nil
}

func (f *fakeQuotaStatus) SetLimit(_ context.Context, userID string, dailyLimit int) error {
	f.limits[userID] = dailyLimit
	return nil
}

type fakeReconciler struct {
	removed int
	err     error
	runs    int
}

func (f *fakeReconciler) Run(context.Context) (int, error) {
	f.runs++
	if f.err != nil {
		return 0, f.err
	}
	return f.removed, nil
}

// countingLimiter counts per key in memory.
type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (l *countingLimiter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	return l.counts[key], nil
}

func testConfig() *config.Config {
	return &config.Config{
		GinMode:         "test",
		CORSOrigins:     []string{"http://localhost:3000"},
		MaxFileSize:     1 << 20,
		RateLimitReqs:   1000,
		RateLimitWindow: 60,
		ChatRateLimit:   2,
		AIRateLimit:     5,
		ServiceName:     "elearning-test",
	}
}
