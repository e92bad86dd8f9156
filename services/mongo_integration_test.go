package services

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"elearning-platform/internal/config"
	"elearning-platform/models"
)

// testDatabase connects to MONGO_URI and returns a throwaway database with
// the production indexes. Tests are skipped without it.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database(fmt.Sprintf("elearning_test_%d", time.Now().UnixNano()))
	require.NoError(t, config.CreateIndexes(ctx, db))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func TestCourseService_Lifecycle(t *testing.T) {
	db := testDatabase(t)
	svc := NewCourseService(db)
	ctx := context.Background()

	course, err := svc.Create(ctx, "instructor-1", models.CreateCourseRequest{Title: "Biology", SubjectCode: "BIO101"})
	require.NoError(t, err)
	id := course.ID.Hex()

	_, err = svc.Enroll(ctx, "student-1", id)
	assert.ErrorIs(t, err, ErrNotFound, "unpublished courses cannot be joined")

	published := true
	_, err = svc.Update(ctx, id, models.UpdateCourseRequest{IsPublished: &published})
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, "student-1", id)
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, "student-1", id)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EnrollmentCount)

	ok, err := svc.IsEnrolled(ctx, "student-1", id)
	require.NoError(t, err)
	assert.True(t, ok)

	lesson, err := svc.CreateLesson(ctx, id, models.CreateLessonRequest{Title: "Cells", Content: "Cells are small.", Order: 1})
	require.NoError(t, err)
	lessons, err := svc.ListLessons(ctx, id, false)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, lesson.ID, lessons[0].ID)

	require.NoError(t, svc.Unenroll(ctx, "student-1", id))
	assert.ErrorIs(t, svc.Unenroll(ctx, "student-1", id), ErrNotEnrolled)

	require.NoError(t, svc.Delete(ctx, id))
	_, err = svc.GetLesson(ctx, lesson.ID.Hex())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCourseService_InvalidID(t *testing.T) {
	db := testDatabase(t)
	_, err := NewCourseService(db).Get(context.Background(), "not-an-id")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestExerciseService_SubmitAttempts(t *testing.T) {
	db := testDatabase(t)
	svc := NewExerciseService(db)
	ctx := context.Background()

	ex, err := svc.Create(ctx, "instructor-1", models.CreateExerciseRequest{
		Title:        "Cells quiz",
		CourseID:     "course-1",
		ExerciseType: models.ExerciseTypeQuiz,
		Questions:    threeQuestionExercise().Questions,
		MaxAttempts:  2,
		PassingScore: 60,
		IsPublished:  true,
	})
	require.NoError(t, err)
	id := ex.ID.Hex()

	first, err := svc.Submit(ctx, id, "student-1", models.SubmitExerciseRequest{Answers: []int{1, 0, 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Attempt)
	assert.False(t, first.Passed)

	second, err := svc.Submit(ctx, id, "student-1", models.SubmitExerciseRequest{Answers: []int{1, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempt)
	assert.True(t, second.Passed)

	_, err = svc.Submit(ctx, id, "student-1", models.SubmitExerciseRequest{Answers: []int{1, 0, 0}})
	assert.ErrorIs(t, err, ErrMaxAttempts)

	subs, err := svc.ListSubmissions(ctx, id, "student-1")
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	require.NoError(t, svc.Delete(ctx, id))
	subs, err = svc.ListSubmissions(ctx, id, "")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestExerciseService_RejectsInvalidQuestions(t *testing.T) {
	db := testDatabase(t)
	_, err := NewExerciseService(db).Create(context.Background(), "i", models.CreateExerciseRequest{
		Title:        "Broken",
		CourseID:     "c",
		ExerciseType: models.ExerciseTypeQuiz,
		Questions:    []models.Question{{Question: "?", Options: []string{"a", "b"}, CorrectAnswer: 5}},
	})
	assert.ErrorIs(t, err, ErrInvalidQuestion)
}

func TestExerciseService_UnpublishedAndEmpty(t *testing.T) {
	db := testDatabase(t)
	svc := NewExerciseService(db)
	ctx := context.Background()

	draft, err := svc.Create(ctx, "i", models.CreateExerciseRequest{
		Title: "Draft", CourseID: "c", ExerciseType: models.ExerciseTypeQuiz,
		Questions: threeQuestionExercise().Questions,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, draft.MaxAttempts)
	_, err = svc.Submit(ctx, draft.ID.Hex(), "s", models.SubmitExerciseRequest{Answers: []int{1}})
	assert.ErrorIs(t, err, ErrNotFound)

	empty, err := svc.Create(ctx, "i", models.CreateExerciseRequest{
		Title: "Empty", CourseID: "c", ExerciseType: models.ExerciseTypeQuiz, IsPublished: true,
	})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, empty.ID.Hex(), "s", models.SubmitExerciseRequest{Answers: []int{}})
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestExerciseService_EditQuestions(t *testing.T) {
	db := testDatabase(t)
	svc := NewExerciseService(db)
	ctx := context.Background()

	ex, err := svc.Create(ctx, "i", models.CreateExerciseRequest{
		Title: "Mixed", CourseID: "c", ExerciseType: models.ExerciseTypeQuiz,
		Questions: threeQuestionExercise().Questions,
	})
	require.NoError(t, err)
	id := ex.ID.Hex()

	added, err := svc.AddQuestion(ctx, id, models.Question{Question: "NaCl is", Options: []string{"water", "salt"}, CorrectAnswer: 1})
	require.NoError(t, err)
	require.Len(t, added.Questions, 4)
	assert.Equal(t, "NaCl is", added.Questions[3].Question)

	updated, err := svc.UpdateQuestion(ctx, id, 0, models.Question{Question: "3+3", Options: []string{"6", "7"}, CorrectAnswer: 0})
	require.NoError(t, err)
	assert.Equal(t, "3+3", updated.Questions[0].Question)
	assert.Len(t, updated.Questions, 4)

	deleted, err := svc.DeleteQuestion(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, deleted.Questions, 3)
	assert.Equal(t, []string{"3+3", "H2O is", "NaCl is"}, []string{
		deleted.Questions[0].Question, deleted.Questions[1].Question, deleted.Questions[2].Question,
	})

	_, err = svc.DeleteQuestion(ctx, id, 3)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.UpdateQuestion(ctx, id, -1, models.Question{Question: "?", Options: []string{"a", "b"}})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.AddQuestion(ctx, id, models.Question{Question: "?", Options: []string{"a", "b"}, CorrectAnswer: 2})
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got.Questions, 3)
}
