package routes

import (
	"context"
	"net/http"
	"strconv"

	"elearning-platform/middleware"
	"elearning-platform/models"
	"elearning-platform/utils"

	"github.com/gin-gonic/gin"
)

// CourseAPI is satisfied by *services.CourseService.
type CourseAPI interface {
	Create(ctx context.Context, instructorID string, req models.CreateCourseRequest) (*models.Course, error)
	Get(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	Update(ctx context.Context, id string, req models.UpdateCourseRequest) (*models.Course, error)
	Delete(ctx context.Context, id string) error

	CreateLesson(ctx context.Context, courseID string, req models.CreateLessonRequest) (*models.Lesson, error)
	ListLessons(ctx context.Context, courseID string, publishedOnly bool) ([]models.Lesson, error)
	GetLesson(ctx context.Context, id string) (*models.Lesson, error)
	UpdateLesson(ctx context.Context, id string, req models.UpdateLessonRequest) (*models.Lesson, error)
	DeleteLesson(ctx context.Context, id string) error

	Enroll(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	Unenroll(ctx context.Context, studentID, courseID string) error
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
	ListEnrollments(ctx context.Context, studentID string) ([]models.Enrollment, error)
}

func queryInt64(c *gin.Context, key string) int64 {
	v, _ := strconv.ParseInt(c.Query(key), 10, 64)
	return v
}

// visibleCourse loads a course, hiding unpublished ones from students.
func visibleCourse(c *gin.Context, svc CourseAPI, id string) (*models.Course, bool) {
	course, err := svc.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Failed to load course")
		return nil, false
	}
	if !course.IsPublished && !middleware.CanManage(c, course.InstructorID) {
		utils.RespondWithNotFound(c, "Course not found")
		return nil, false
	}
	return course, true
}

// managedCourse loads a course the caller may modify.
func managedCourse(c *gin.Context, svc CourseAPI, id string) (*models.Course, bool) {
	course, err := svc.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Failed to load course")
		return nil, false
	}
	if !middleware.CanManage(c, course.InstructorID) {
		utils.RespondWithForbidden(c, "You can only manage your own courses")
		return nil, false
	}
	return course, true
}

func SetupCourseRoutes(api *gin.RouterGroup, svc CourseAPI, authMiddleware *middleware.AuthMiddleware, roleMiddleware *middleware.RoleMiddleware) {
	courses := api.Group("/courses")
	courses.Use(authMiddleware.RequireAuth(), roleMiddleware.StudentGuard())

	courses.GET("", func(c *gin.Context) {
		filter := models.CourseFilter{
			SubjectCode:   c.Query("subject_code"),
			InstructorID:  c.Query("instructor_id"),
			PublishedOnly: !middleware.IsStaff(c),
			Skip:          queryInt64(c, "skip"),
			Limit:         queryInt64(c, "limit"),
		}
		list, err := svc.List(c.Request.Context(), filter)
		if err != nil {
			respondServiceError(c, err, "Failed to list courses")
			return
		}
		c.JSON(http.StatusOK, gin.H{"courses": list, "count": len(list)})
	})

	courses.POST("", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		var req models.CreateCourseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		course, err := svc.Create(c.Request.Context(), middleware.GetUserID(c), req)
		if err != nil {
			respondServiceError(c, err, "Failed to create course")
			return
		}
		c.JSON(http.StatusCreated, course)
	})

	courses.GET("/:id", func(c *gin.Context) {
		course, ok := visibleCourse(c, svc, c.Param("id"))
		if !ok {
			return
		}
		c.JSON(http.StatusOK, course)
	})

	courses.PATCH("/:id", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		var req models.UpdateCourseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if _, ok := managedCourse(c, svc, c.Param("id")); !ok {
			return
		}
		course, err := svc.Update(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			respondServiceError(c, err, "Failed to update course")
			return
		}
		c.JSON(http.StatusOK, course)
	})

	courses.DELETE("/:id", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		if _, ok := managedCourse(c, svc, c.Param("id")); !ok {
			return
		}
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondServiceError(c, err, "Failed to delete course")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Course deleted"})
	})

	courses.GET("/:id/lessons", func(c *gin.Context) {
		course, ok := visibleCourse(c, svc, c.Param("id"))
		if !ok {
			return
		}
		publishedOnly := !middleware.CanManage(c, course.InstructorID)
		lessons, err := svc.ListLessons(c.Request.Context(), c.Param("id"), publishedOnly)
		if err != nil {
			respondServiceError(c, err, "Failed to list lessons")
			return
		}
		c.JSON(http.StatusOK, gin.H{"lessons": lessons, "count": len(lessons)})
	})

	courses.POST("/:id/lessons", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		var req models.CreateLessonRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if _, ok := managedCourse(c, svc, c.Param("id")); !ok {
			return
		}
		lesson, err := svc.CreateLesson(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			respondServiceError(c, err, "Failed to create lesson")
			return
		}
		c.JSON(http.StatusCreated, lesson)
	})

	courses.POST("/:id/enroll", func(c *gin.Context) {
		enrollment, err := svc.Enroll(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to enroll")
			return
		}
		c.JSON(http.StatusCreated, enrollment)
	})

	courses.GET("/:id/enroll", func(c *gin.Context) {
		enrolled, err := svc.IsEnrolled(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to check enrollment")
			return
		}
		c.JSON(http.StatusOK, gin.H{"course_id": c.Param("id"), "enrolled": enrolled})
	})

	courses.DELETE("/:id/enroll", func(c *gin.Context) {
		if err := svc.Unenroll(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
			respondServiceError(c, err, "Failed to unenroll")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Unenrolled"})
	})

	lessons := api.Group("/lessons")
	lessons.Use(authMiddleware.RequireAuth(), roleMiddleware.StudentGuard())

	lessons.GET("/:id", func(c *gin.Context) {
		lesson, err := svc.GetLesson(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to load lesson")
			return
		}
		course, ok := visibleCourse(c, svc, lesson.CourseID)
		if !ok {
			return
		}
		if !lesson.IsPublished && !middleware.CanManage(c, course.InstructorID) {
			utils.RespondWithNotFound(c, "Lesson not found")
			return
		}
		c.JSON(http.StatusOK, lesson)
	})

	lessons.PATCH("/:id", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		var req models.UpdateLessonRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		lesson, err := svc.GetLesson(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to load lesson")
			return
		}
		if _, ok := managedCourse(c, svc, lesson.CourseID); !ok {
			return
		}
		updated, err := svc.UpdateLesson(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			respondServiceError(c, err, "Failed to update lesson")
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	lessons.DELETE("/:id", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		lesson, err := svc.GetLesson(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to load lesson")
			return
		}
		if _, ok := managedCourse(c, svc, lesson.CourseID); !ok {
			return
		}
		if err := svc.DeleteLesson(c.Request.Context(), c.Param("id")); err != nil {
			respondServiceError(c, err, "Failed to delete lesson")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Lesson deleted"})
	})

	api.GET("/enrollments", authMiddleware.RequireAuth(), func(c *gin.Context) {
		enrollments, err := svc.ListEnrollments(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			respondServiceError(c, err, "Failed to list enrollments")
			return
		}
		c.JSON(http.StatusOK, gin.H{"enrollments": enrollments, "count": len(enrollments)})
	})
}
