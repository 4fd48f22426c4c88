package analyses

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bloodtest-backend/internal/shared/metrics"
	"bloodtest-backend/internal/shared/server/respond"
)

const maxUploadSize = 10 << 20 // 10MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the analysis routes to the router.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/analyze", h.analyze)
	r.GET("/status/:analysis_id", h.status)
	r.GET("/analyses", h.list)
	r.DELETE("/analyses/:analysis_id", h.remove)
}

func (h *Handler) analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file")
		return
	}
	defer file.Close()

	metrics.IncJobsReceived()
	receipt, err := h.Svc.Submit(c.Request.Context(), fileHeader.Filename, c.PostForm("query"), file)
	if err != nil {
		if errors.Is(err, ErrInvalidUpload) {
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		respond.Error(c, http.StatusInternalServerError, "submit_error", "Error processing blood report: "+err.Error())
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"status":         "accepted",
		"analysis_id":    receipt.AnalysisID,
		"task_id":        receipt.TaskID,
		"message":        "File uploaded successfully. Analysis in progress.",
		"file_processed": receipt.FileName,
	})
}

func (h *Handler) status(c *gin.Context) {
	id, ok := pathAnalysisID(c)
	if !ok {
		return
	}
	a, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "Analysis not found")
			return
		}
		respond.Error(c, http.StatusInternalServerError, "status_error", "Error retrieving analysis status")
		return
	}
	respond.OK(c, statusView(a))
}

func (h *Handler) list(c *gin.Context) {
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	status := c.Query("status")
	if status != "" && !validStatus(status) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "status must be one of pending, processing, completed, failed")
		return
	}

	records, total, err := h.Svc.List(c.Request.Context(), status, skip, limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "list_error", "Error listing analyses")
		return
	}
	views := make([]gin.H, 0, len(records))
	for _, a := range records {
		views = append(views, statusView(a))
	}
	respond.OK(c, gin.H{
		"analyses": views,
		"total":    total,
		"skip":     skip,
		"limit":    limit,
	})
}

func (h *Handler) remove(c *gin.Context) {
	id, ok := pathAnalysisID(c)
	if !ok {
		return
	}
	if err := h.Svc.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "Analysis not found")
			return
		}
		respond.Error(c, http.StatusInternalServerError, "delete_error", "Error deleting analysis")
		return
	}
	respond.OK(c, gin.H{
		"message":     "Analysis record deleted",
		"analysis_id": id,
	})
}

// statusView projects a record for API responses. Result and error
// fields only appear in the state that owns them.
func statusView(a Analysis) gin.H {
	view := gin.H{
		"analysis_id": a.ID,
		"status":      a.Status,
		"file_name":   a.FileName,
		"query":       a.OriginalQuery,
		"file_size":   a.FileSize,
		"created_at":  a.CreatedAt,
		"updated_at":  a.UpdatedAt,
	}
	switch a.Status {
	case StatusCompleted:
		view["result"] = a.AnalysisResult
	case StatusFailed:
		view["error"] = a.ErrorMessage
	}
	if a.ProcessingTime != nil {
		view["processing_time"] = *a.ProcessingTime
	}
	return view
}

func pathAnalysisID(c *gin.Context) (string, bool) {
	id := c.Param("analysis_id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysis_id must be a valid UUID")
		return "", false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

func validStatus(status string) bool {
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}
