package routes

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"elearning-platform/middleware"
	"elearning-platform/models"
	"elearning-platform/services"
	"elearning-platform/utils"

	"github.com/gin-gonic/gin"
)

// ExerciseAPI is satisfied by *services.ExerciseService.
type ExerciseAPI interface {
	Create(ctx context.Context, createdBy string, req models.CreateExerciseRequest) (*models.Exercise, error)
	Get(ctx context.Context, id string) (*models.Exercise, error)
	List(ctx context.Context, filter models.ExerciseFilter) ([]models.Exercise, error)
	Update(ctx context.Context, id string, req models.UpdateExerciseRequest) (*models.Exercise, error)
	Delete(ctx context.Context, id string) error
	Submit(ctx context.Context, exerciseID, studentID string, req models.SubmitExerciseRequest) (*models.ExerciseSubmission, error)
	ListSubmissions(ctx context.Context, exerciseID, studentID string) ([]models.ExerciseSubmission, error)
	AddQuestion(ctx context.Context, id string, q models.Question) (*models.Exercise, error)
	UpdateQuestion(ctx context.Context, id string, index int, q models.Question) (*models.Exercise, error)
	DeleteQuestion(ctx context.Context, id string, index int) (*models.Exercise, error)
}

// UserLookup resolves user ids for exports.
type UserLookup interface {
	Me(ctx context.Context, userID string) (*models.User, error)
}

type studentQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Points   float64  `json:"points,omitempty"`
}

// studentExercise hides answers and explanations.
func studentExercise(ex *models.Exercise) gin.H {
	questions := make([]studentQuestion, len(ex.Questions))
	for i, q := range ex.Questions {
		questions[i] = studentQuestion{Question: q.Question, Options: q.Options, Points: q.Points}
	}
	return gin.H{
		"id":                 ex.ID.Hex(),
		"title":              ex.Title,
		"description":        ex.Description,
		"course_id":          ex.CourseID,
		"lesson_id":          ex.LessonID,
		"subject_code":       ex.SubjectCode,
		"exercise_type":      ex.ExerciseType,
		"questions":          questions,
		"time_limit_minutes": ex.TimeLimitMinutes,
		"max_attempts":       ex.MaxAttempts,
		"passing_score":      ex.PassingScore,
	}
}

func managedExercise(c *gin.Context, svc ExerciseAPI) (*models.Exercise, bool) {
	ex, err := svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to load exercise")
		return nil, false
	}
	if !middleware.CanManage(c, ex.CreatedBy) {
		utils.RespondWithForbidden(c, "You can only manage your own exercises")
		return nil, false
	}
	return ex, true
}

// questionIndex parses the zero-based :index path parameter.
func questionIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		utils.RespondWithError(c, http.StatusBadRequest, "invalid_index", "Question index must be a non-negative integer", nil)
		return 0, false
	}
	return index, true
}

func SetupExerciseRoutes(api *gin.RouterGroup, svc ExerciseAPI, users UserLookup, authMiddleware *middleware.AuthMiddleware, roleMiddleware *middleware.RoleMiddleware) {
	exercises := api.Group("/exercises")
	exercises.Use(authMiddleware.RequireAuth(), roleMiddleware.StudentGuard())

	exercises.GET("", func(c *gin.Context) {
		staff := middleware.IsStaff(c)
		list, err := svc.List(c.Request.Context(), models.ExerciseFilter{
			CourseID:      c.Query("course_id"),
			LessonID:      c.Query("lesson_id"),
			SubjectCode:   c.Query("subject_code"),
			PublishedOnly: !staff,
			Skip:          queryInt64(c, "skip"),
			Limit:         queryInt64(c, "limit"),
		})
		if err != nil {
			respondServiceError(c, err, "Failed to list exercises")
			return
		}
		if staff {
			c.JSON(http.StatusOK, gin.H{"exercises": list, "count": len(list)})
			return
		}
		views := make([]gin.H, len(list))
		for i := range list {
			views[i] = studentExercise(&list[i])
		}
		c.JSON(http.StatusOK, gin.H{"exercises": views, "count": len(views)})
	})

	exercises.POST("", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		var req models.CreateExerciseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		ex, err := svc.Create(c.Request.Context(), middleware.GetUserID(c), req)
		if err != nil {
			respondServiceError(c, err, "Failed to create exercise")
			return
		}
		c.JSON(http.StatusCreated, ex)
	})

	exercises.GET("/:id", func(c *gin.Context) {
		ex, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to load exercise")
			return
		}
		if middleware.CanManage(c, ex.CreatedBy) {
			c.JSON(http.StatusOK, ex)
			return
		}
		if !ex.IsPublished {
			utils.RespondWithNotFound(c, "Exercise not found")
			return
		}
		c.JSON(http.StatusOK, studentExercise(ex))
	})

	exercises.PATCH("/:id", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		var req models.UpdateExerciseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if _, ok := managedExercise(c, svc); !ok {
			return
		}
		ex, err := svc.Update(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			respondServiceError(c, err, "Failed to update exercise")
			return
		}
		c.JSON(http.StatusOK, ex)
	})

	exercises.DELETE("/:id", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		if _, ok := managedExercise(c, svc); !ok {
			return
		}
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondServiceError(c, err, "Failed to delete exercise")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Exercise deleted"})
	})

	exercises.GET("/:id/questions", func(c *gin.Context) {
		ex, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to load exercise")
			return
		}
		if middleware.CanManage(c, ex.CreatedBy) {
			c.JSON(http.StatusOK, gin.H{"questions": ex.Questions, "count": len(ex.Questions)})
			return
		}
		if !ex.IsPublished {
			utils.RespondWithNotFound(c, "Exercise not found")
			return
		}
		view := studentExercise(ex)
		c.JSON(http.StatusOK, gin.H{"questions": view["questions"], "count": len(ex.Questions)})
	})

	exercises.POST("/:id/questions", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		var q models.Question
		if err := c.ShouldBindJSON(&q); err != nil {
			respondBindError(c, err)
			return
		}
		if _, ok := managedExercise(c, svc); !ok {
			return
		}
		ex, err := svc.AddQuestion(c.Request.Context(), c.Param("id"), q)
		if err != nil {
			respondServiceError(c, err, "Failed to add question")
			return
		}
		c.JSON(http.StatusCreated, ex)
	})

	exercises.PATCH("/:id/questions/:index", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		index, ok := questionIndex(c)
		if !ok {
			return
		}
		var q models.Question
		if err := c.ShouldBindJSON(&q); err != nil {
			respondBindError(c, err)
			return
		}
		if _, ok := managedExercise(c, svc); !ok {
			return
		}
		ex, err := svc.UpdateQuestion(c.Request.Context(), c.Param("id"), index, q)
		if err != nil {
			respondServiceError(c, err, "Failed to update question")
			return
		}
		c.JSON(http.StatusOK, ex)
	})

	exercises.DELETE("/:id/questions/:index", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		index, ok := questionIndex(c)
		if !ok {
			return
		}
		if _, ok := managedExercise(c, svc); !ok {
			return
		}
		ex, err := svc.DeleteQuestion(c.Request.Context(), c.Param("id"), index)
		if err != nil {
			respondServiceError(c, err, "Failed to delete question")
			return
		}
		c.JSON(http.StatusOK, ex)
	})

	exercises.POST("/:id/submissions", func(c *gin.Context) {
		var req models.SubmitExerciseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		sub, err := svc.Submit(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req)
		if err != nil {
			respondServiceError(c, err, "Failed to submit exercise")
			return
		}
		c.JSON(http.StatusCreated, sub)
	})

	// Staff managing the exercise see every submission; others see their own.
	exercises.GET("/:id/submissions", func(c *gin.Context) {
		ex, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to load exercise")
			return
		}
		studentID := middleware.GetUserID(c)
		if middleware.CanManage(c, ex.CreatedBy) {
			studentID = c.Query("student_id")
		}
		subs, err := svc.ListSubmissions(c.Request.Context(), c.Param("id"), studentID)
		if err != nil {
			respondServiceError(c, err, "Failed to list submissions")
			return
		}
		c.JSON(http.StatusOK, gin.H{"submissions": subs, "count": len(subs)})
	})

	exercises.GET("/:id/submissions/export", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		ex, ok := managedExercise(c, svc)
		if !ok {
			return
		}
		subs, err := svc.ListSubmissions(c.Request.Context(), c.Param("id"), "")
		if err != nil {
			respondServiceError(c, err, "Failed to list submissions")
			return
		}

		names := map[string]string{}
		lookup := func(id string) string {
			if name, ok := names[id]; ok {
				return name
			}
			name := ""
			if users != nil {
				if u, err := users.Me(c.Request.Context(), id); err == nil {
					name = u.FullName
				}
			}
			names[id] = name
			return name
		}

		data, err := services.ExportSubmissionsXLSX(ex, subs, lookup)
		if err != nil {
			respondServiceError(c, err, "Failed to export submissions")
			return
		}
		filename := fmt.Sprintf("submissions_%s.xlsx", ex.ID.Hex())
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Data(http.StatusOK, services.XLSXContentType, data)
	})
}
