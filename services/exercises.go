package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"elearning-platform/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ExerciseService stores exercises and grades student submissions.
type ExerciseService struct {
	exercises   *mongo.Collection
	submissions *mongo.Collection
	now         func() time.Time
}

func NewExerciseService(db *mongo.Database) *ExerciseService {
	return &ExerciseService{
		exercises:   db.Collection("exercises"),
		submissions: db.Collection("exercise_submissions"),
		now:         time.Now,
	}
}

func (s *ExerciseService) Create(ctx context.Context, createdBy string, req models.CreateExerciseRequest) (*models.Exercise, error) {
	if err := validateQuestions(req.Questions); err != nil {
		return nil, err
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	now := s.now().UTC()
	exercise := &models.Exercise{
		Title:            req.Title,
		Description:      req.Description,
		CourseID:         req.CourseID,
		LessonID:         req.LessonID,
		SubjectCode:      req.SubjectCode,
		ExerciseType:     req.ExerciseType,
		Questions:        req.Questions,
		TimeLimitMinutes: req.TimeLimitMinutes,
		MaxAttempts:      maxAttempts,
		PassingScore:     req.PassingScore,
		IsPublished:      req.IsPublished,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if exercise.Questions == nil {
		exercise.Questions = []models.Question{}
	}
	res, err := s.exercises.InsertOne(ctx, exercise)
	if err != nil {
		return nil, fmt.Errorf("failed to create exercise: %w", err)
	}
	exercise.ID = insertedID(res)
	return exercise, nil
}

func (s *ExerciseService) Get(ctx context.Context, id string) (*models.Exercise, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var exercise models.Exercise
	if err := s.exercises.FindOne(ctx, bson.M{"_id": oid}).Decode(&exercise); err != nil {
		return nil, notFound(err)
	}
	return &exercise, nil
}

func (s *ExerciseService) List(ctx context.Context, filter models.ExerciseFilter) ([]models.Exercise, error) {
	query := bson.M{}
	if filter.CourseID != "" {
		query["course_id"] = filter.CourseID
	}
	if filter.LessonID != "" {
		query["lesson_id"] = filter.LessonID
	}
	if filter.SubjectCode != "" {
		query["subject_code"] = filter.SubjectCode
	}
	if filter.PublishedOnly {
		query["is_published"] = true
	}

	opts := pageOptions(filter.Skip, filter.Limit).SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.exercises.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	exercises := []models.Exercise{}
	if err := cursor.All(ctx, &exercises); err != nil {
		return nil, err
	}
	return exercises, nil
}

func (s *ExerciseService) Update(ctx context.Context, id string, req models.UpdateExerciseRequest) (*models.Exercise, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	if req.Questions != nil {
		if err := validateQuestions(*req.Questions); err != nil {
			return nil, err
		}
	}
	set := bson.M{"updated_at": s.now().UTC()}
	setIf(set, "title", req.Title)
	setIf(set, "description", req.Description)
	setIf(set, "questions", req.Questions)
	setIf(set, "time_limit_minutes", req.TimeLimitMinutes)
	setIf(set, "max_attempts", req.MaxAttempts)
	setIf(set, "passing_score", req.PassingScore)
	setIf(set, "is_published", req.IsPublished)

	var exercise models.Exercise
	err = s.exercises.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&exercise)
	if err != nil {
		return nil, notFound(err)
	}
	return &exercise, nil
}

// Delete removes the exercise and its submissions.
func (s *ExerciseService) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.exercises.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := s.submissions.DeleteMany(ctx, bson.M{"exercise_id": id}); err != nil {
		return fmt.Errorf("failed to delete submissions of exercise %s: %w", id, err)
	}
	return nil
}

// Submit grades and stores one attempt. MaxAttempts of 0 means unlimited.
func (s *ExerciseService) Submit(ctx context.Context, exerciseID, studentID string, req models.SubmitExerciseRequest) (*models.ExerciseSubmission, error) {
	exercise, err := s.Get(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if !exercise.IsPublished {
		return nil, ErrNotFound
	}
	if len(exercise.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	attempts, err := s.submissions.CountDocuments(ctx, bson.M{"exercise_id": exerciseID, "student_id": studentID})
	if err != nil {
		return nil, err
	}
	if exercise.MaxAttempts > 0 && attempts >= int64(exercise.MaxAttempts) {
		return nil, ErrMaxAttempts
	}

	answers, correct, score, passed := ScoreSubmission(exercise, req.Answers)
	submission := &models.ExerciseSubmission{
		ExerciseID:       exerciseID,
		StudentID:        studentID,
		Attempt:          int(attempts) + 1,
		Answers:          answers,
		CorrectAnswers:   correct,
		TotalQuestions:   len(exercise.Questions),
		Score:            score,
		Passed:           passed,
		TimeTakenMinutes: req.TimeTakenMinutes,
		SubmittedAt:      s.now().UTC(),
	}
	res, err := s.submissions.InsertOne(ctx, submission)
	if err != nil {
		return nil, fmt.Errorf("failed to store submission: %w", err)
	}
	submission.ID = insertedID(res)
	return submission, nil
}

// ListSubmissions returns submissions for an exercise, optionally for one
// student only.
func (s *ExerciseService) ListSubmissions(ctx context.Context, exerciseID, studentID string) ([]models.ExerciseSubmission, error) {
	query := bson.M{"exercise_id": exerciseID}
	if studentID != "" {
		query["student_id"] = studentID
	}
	cursor, err := s.submissions.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	submissions := []models.ExerciseSubmission{}
	if err := cursor.All(ctx, &submissions); err != nil {
		return nil, err
	}
	return submissions, nil
}

// AddQuestion appends q to the exercise's question list.
func (s *ExerciseService) AddQuestion(ctx context.Context, id string, q models.Question) (*models.Exercise, error) {
	if err := validateQuestions([]models.Question{q}); err != nil {
		return nil, err
	}
	return s.editQuestions(ctx, id, -1, bson.M{
		"$push": bson.M{"questions": q},
		"$set":  bson.M{"updated_at": s.now().UTC()},
	})
}

// UpdateQuestion replaces the question at index. An index past the end of the
// list is ErrNotFound.
func (s *ExerciseService) UpdateQuestion(ctx context.Context, id string, index int, q models.Question) (*models.Exercise, error) {
	if index < 0 {
		return nil, ErrNotFound
	}
	if err := validateQuestions([]models.Question{q}); err != nil {
		return nil, err
	}
	return s.editQuestions(ctx, id, index, bson.M{
		"$set": bson.M{
			"questions." + strconv.Itoa(index): q,
			"updated_at":                       s.now().UTC(),
		},
	})
}

// DeleteQuestion removes the question at index and shifts the rest down.
// Stored submissions keep the score they were graded with.
func (s *ExerciseService) DeleteQuestion(ctx context.Context, id string, index int) (*models.Exercise, error) {
	if index < 0 {
		return nil, ErrNotFound
	}
	keep := bson.M{"$filter": bson.M{
		"input": bson.M{"$range": bson.A{0, bson.M{"$size": "$questions"}}},
		"as":    "i",
		"cond":  bson.M{"$ne": bson.A{"$$i", index}},
	}}
	return s.editQuestions(ctx, id, index, mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"questions": bson.M{"$map": bson.M{
				"input": keep,
				"as":    "i",
				"in":    bson.M{"$arrayElemAt": bson.A{"$questions", "$$i"}},
			}},
			"updated_at": s.now().UTC(),
		}}},
	})
}

// editQuestions applies update to the exercise, requiring the question at
// index to exist when index is not negative.
func (s *ExerciseService) editQuestions(ctx context.Context, id string, index int, update any) (*models.Exercise, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"_id": oid}
	if index >= 0 {
		filter["questions."+strconv.Itoa(index)] = bson.M{"$exists": true}
	}
	var exercise models.Exercise
	err = s.exercises.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&exercise)
	if err != nil {
		return nil, notFound(err)
	}
	return &exercise, nil
}

func validateQuestions(questions []models.Question) error {
	for i, q := range questions {
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %d needs at least two options", ErrInvalidQuestion, i+1)
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return fmt.Errorf("%w: question %d correct_answer %d is out of range", ErrInvalidQuestion, i+1, q.CorrectAnswer)
		}
	}
	return nil
}
