package routes

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"elearning-platform/internal/rag"
	"elearning-platform/middleware"
	"elearning-platform/models"
	"elearning-platform/services"
	"elearning-platform/utils"

	"github.com/gin-gonic/gin"
)

// MaterialAPI is satisfied by *services.MaterialService.
type MaterialAPI interface {
	Create(ctx context.Context, uploaderID string, up services.MaterialUpload) (*models.MaterialResponse, error)
	Process(ctx context.Context, materialID string, chunkSize, overlap int) (*rag.IngestResult, error)
	Delete(ctx context.Context, materialID string) error
	Get(ctx context.Context, id string) (*models.Material, error)
	List(ctx context.Context, subjectID string) ([]models.Material, error)
	Search(ctx context.Context, req models.SearchRequest) (*rag.QueryResult, error)
}

// readUpload builds a MaterialUpload from a JSON body or a multipart form
// carrying a PDF or plain text file in the "file" field.
func readUpload(c *gin.Context, maxFileSize int64) (services.MaterialUpload, bool) {
	var up services.MaterialUpload

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&up.Request); err != nil {
			respondBindError(c, err)
			return up, false
		}
		up.Content = up.Request.Content
		up.ContentType = "text/plain"
		return up, true
	}

	if err := c.ShouldBind(&up.Request); err != nil {
		respondBindError(c, err)
		return up, false
	}
	header, err := c.FormFile("file")
	if err != nil {
		if up.Request.Content == "" {
			utils.RespondWithError(c, http.StatusBadRequest, "no_file", "No file or content provided", nil)
			return up, false
		}
		up.Content = up.Request.Content
		up.ContentType = "text/plain"
		return up, true
	}
	if header.Size > maxFileSize {
		utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large", "File size exceeds maximum limit",
			gin.H{"max_size": maxFileSize})
		return up, false
	}

	file, err := header.Open()
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "invalid_file", "Cannot read uploaded file", nil)
		return up, false
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxFileSize))
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "invalid_file", "Cannot read uploaded file", nil)
		return up, false
	}

	name := strings.ToLower(header.Filename)
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		result, err := services.ExtractPDFText(c.Request.Context(), data)
		if err != nil {
			respondServiceError(c, err, "Failed to extract PDF text")
			return up, false
		}
		up.Content = result.Text
		up.Pages = result.Pages
		up.ContentType = "application/pdf"
	case strings.HasSuffix(name, ".pdf"):
		utils.RespondWithError(c, http.StatusBadRequest, "invalid_pdf", "File does not appear to be a valid PDF", nil)
		return up, false
	case strings.HasSuffix(name, ".txt"), strings.HasSuffix(name, ".md"),
		strings.HasPrefix(header.Header.Get("Content-Type"), "text/"):
		up.Content = string(data)
		up.ContentType = "text/plain"
	default:
		utils.RespondWithError(c, http.StatusBadRequest, "invalid_file_type", "Only PDF and plain text files are allowed", nil)
		return up, false
	}
	return up, true
}

func SetupMaterialRoutes(api *gin.RouterGroup, svc MaterialAPI, maxFileSize int64, authMiddleware *middleware.AuthMiddleware, roleMiddleware *middleware.RoleMiddleware) {
	materials := api.Group("/materials")
	materials.Use(authMiddleware.RequireAuth(), roleMiddleware.StudentGuard())

	materials.POST("", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		up, ok := readUpload(c, maxFileSize)
		if !ok {
			return
		}

		resp, err := svc.Create(c.Request.Context(), middleware.GetUserID(c), up)
		if err != nil {
			respondServiceError(c, err, "Failed to store material")
			return
		}
		status := http.StatusCreated
		if resp.TaskID != "" {
			status = http.StatusAccepted
		}
		c.JSON(status, resp)
	})

	materials.GET("", func(c *gin.Context) {
		list, err := svc.List(c.Request.Context(), c.Query("subject_id"))
		if err != nil {
			respondServiceError(c, err, "Failed to list materials")
			return
		}
		c.JSON(http.StatusOK, gin.H{"materials": list, "count": len(list)})
	})

	materials.GET("/:id", func(c *gin.Context) {
		m, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to load material")
			return
		}
		c.JSON(http.StatusOK, m)
	})

	materials.POST("/:id/reprocess", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		m, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to load material")
			return
		}
		if !middleware.CanManage(c, m.UploadedBy) {
			utils.RespondWithForbidden(c, "You can only manage your own materials")
			return
		}
		var req models.ReprocessRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			respondBindError(c, err)
			return
		}
		size, overlap := req.ChunkSize, req.Overlap
		if size == 0 && overlap != 0 {
			size = m.ChunkSize
		}
		if size != 0 {
			if err := rag.ValidateChunking(size, overlap); err != nil {
				respondServiceError(c, err, "Invalid chunking parameters")
				return
			}
		}
		result, err := svc.Process(c.Request.Context(), m.ID.Hex(), size, overlap)
		if err != nil {
			respondServiceError(c, err, "Failed to process material")
			return
		}
		c.JSON(http.StatusOK, result)
	})

	materials.DELETE("/:id", roleMiddleware.StaffGuard(), func(c *gin.Context) {
		m, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondServiceError(c, err, "Failed to load material")
			return
		}
		if !middleware.CanManage(c, m.UploadedBy) {
			utils.RespondWithForbidden(c, "You can only manage your own materials")
			return
		}
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondServiceError(c, err, "Failed to delete material")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Material deleted"})
	})

	materials.POST("/search", func(c *gin.Context) {
		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		res, err := svc.Search(c.Request.Context(), req)
		if err != nil {
			respondServiceError(c, err, "Failed to search materials")
			return
		}
		c.JSON(http.StatusOK, res)
	})
}
