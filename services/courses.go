package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"elearning-platform/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultPageSize = 50

// CourseService stores courses, their lessons and student enrollments.
type CourseService struct {
	courses     *mongo.Collection
	lessons     *mongo.Collection
	enrollments *mongo.Collection
	now         func() time.Time
}

func NewCourseService(db *mongo.Database) *CourseService {
	return &CourseService{
		courses:     db.Collection("courses"),
		lessons:     db.Collection("lessons"),
		enrollments: db.Collection("enrollments"),
		now:         time.Now,
	}
}

func (s *CourseService) Create(ctx context.Context, instructorID string, req models.CreateCourseRequest) (*models.Course, error) {
	now := s.now().UTC()
	course := &models.Course{
		Title:        req.Title,
		Description:  req.Description,
		SubjectCode:  req.SubjectCode,
		InstructorID: instructorID,
		ThumbnailURL: req.ThumbnailURL,
		IsPublished:  req.IsPublished,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	res, err := s.courses.InsertOne(ctx, course)
	if err != nil {
		return nil, fmt.Errorf("failed to create course: %w", err)
	}
	course.ID = insertedID(res)
	return course, nil
}

func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var course models.Course
	if err := s.courses.FindOne(ctx, bson.M{"_id": oid}).Decode(&course); err != nil {
		return nil, notFound(err)
	}
	return &course, nil
}

func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	query := bson.M{}
	if filter.SubjectCode != "" {
		query["subject_code"] = filter.SubjectCode
	}
	if filter.InstructorID != "" {
		query["instructor_id"] = filter.InstructorID
	}
	if filter.PublishedOnly {
		query["is_published"] = true
	}

	opts := pageOptions(filter.Skip, filter.Limit).SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.courses.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	courses := []models.Course{}
	if err := cursor.All(ctx, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

func (s *CourseService) Update(ctx context.Context, id string, req models.UpdateCourseRequest) (*models.Course, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updated_at": s.now().UTC()}
	setIf(set, "title", req.Title)
	setIf(set, "description", req.Description)
	setIf(set, "subject_code", req.SubjectCode)
	setIf(set, "thumbnail_url", req.ThumbnailURL)
	setIf(set, "is_published", req.IsPublished)

	var course models.Course
	err = s.courses.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&course)
	if err != nil {
		return nil, notFound(err)
	}
	return &course, nil
}

// Delete removes the course with its lessons and enrollments.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.courses.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := s.lessons.DeleteMany(ctx, bson.M{"course_id": id}); err != nil {
		return fmt.Errorf("failed to delete lessons of course %s: %w", id, err)
	}
	if _, err := s.enrollments.DeleteMany(ctx, bson.M{"course_id": id}); err != nil {
		return fmt.Errorf("failed to delete enrollments of course %s: %w", id, err)
	}
	return nil
}

func (s *CourseService) CreateLesson(ctx context.Context, courseID string, req models.CreateLessonRequest) (*models.Lesson, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	lesson := &models.Lesson{
		CourseID:        courseID,
		Title:           req.Title,
		Content:         req.Content,
		Order:           req.Order,
		DurationMinutes: req.DurationMinutes,
		VideoURL:        req.VideoURL,
		IsPublished:     req.IsPublished,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	res, err := s.lessons.InsertOne(ctx, lesson)
	if err != nil {
		return nil, fmt.Errorf("failed to create lesson: %w", err)
	}
	lesson.ID = insertedID(res)
	return lesson, nil
}

func (s *CourseService) ListLessons(ctx context.Context, courseID string, publishedOnly bool) ([]models.Lesson, error) {
	query := bson.M{"course_id": courseID}
	if publishedOnly {
		query["is_published"] = true
	}
	cursor, err := s.lessons.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "order", Value: 1}}))
	if err != nil {
		return nil, err
	}
	lessons := []models.Lesson{}
	if err := cursor.All(ctx, &lessons); err != nil {
		return nil, err
	}
	return lessons, nil
}

func (s *CourseService) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var lesson models.Lesson
	if err := s.lessons.FindOne(ctx, bson.M{"_id": oid}).Decode(&lesson); err != nil {
		return nil, notFound(err)
	}
	return &lesson, nil
}

func (s *CourseService) UpdateLesson(ctx context.Context, id string, req models.UpdateLessonRequest) (*models.Lesson, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updated_at": s.now().UTC()}
	setIf(set, "title", req.Title)
	setIf(set, "content", req.Content)
	setIf(set, "order", req.Order)
	setIf(set, "duration_minutes", req.DurationMinutes)
	setIf(set, "video_url", req.VideoURL)
	setIf(set, "is_published", req.IsPublished)

	var lesson models.Lesson
	err = s.lessons.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&lesson)
	if err != nil {
		return nil, notFound(err)
	}
	return &lesson, nil
}

func (s *CourseService) DeleteLesson(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.lessons.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Enroll relies on the unique (student_id, course_id) index to reject
// duplicates.
func (s *CourseService) Enroll(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsPublished {
		return nil, ErrNotFound
	}

	enrollment := &models.Enrollment{
		StudentID:  studentID,
		CourseID:   courseID,
		EnrolledAt: s.now().UTC(),
	}
	res, err := s.enrollments.InsertOne(ctx, enrollment)
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrAlreadyEnrolled
	}
	if err != nil {
		return nil, err
	}
	enrollment.ID = insertedID(res)

	if _, err := s.courses.UpdateByID(ctx, course.ID, bson.M{"$inc": bson.M{"enrollment_count": 1}}); err != nil {
		return nil, fmt.Errorf("failed to update enrollment count: %w", err)
	}
	return enrollment, nil
}

func (s *CourseService) Unenroll(ctx context.Context, studentID, courseID string) error {
	res, err := s.enrollments.DeleteOne(ctx, bson.M{"student_id": studentID, "course_id": courseID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotEnrolled
	}
	if oid, err := objectID(courseID); err == nil {
		_, err = s.courses.UpdateOne(ctx,
			bson.M{"_id": oid, "enrollment_count": bson.M{"$gt": 0}},
			bson.M{"$inc": bson.M{"enrollment_count": -1}})
		if err != nil {
			return fmt.Errorf("failed to update enrollment count: %w", err)
		}
	}
	return nil
}

func (s *CourseService) ListEnrollments(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	cursor, err := s.enrollments.Find(ctx, bson.M{"student_id": studentID},
		options.Find().SetSort(bson.D{{Key: "enrolled_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	enrollments := []models.Enrollment{}
	if err := cursor.All(ctx, &enrollments); err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (s *CourseService) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	err := s.enrollments.FindOne(ctx, bson.M{"student_id": studentID, "course_id": courseID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return err == nil, err
}

func pageOptions(skip, limit int64) *options.FindOptions {
	if limit <= 0 || limit > 200 {
		limit = defaultPageSize
	}
	if skip < 0 {
		skip = 0
	}
	return options.Find().SetSkip(skip).SetLimit(limit)
}

// setIf adds key to a $set document when the optional value is present.
func setIf[T any](set bson.M, key string, v *T) {
	if v != nil {
		set[key] = *v
	}
}
