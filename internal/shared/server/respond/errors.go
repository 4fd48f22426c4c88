package respond

import (
	"github.com/gin-gonic/gin"

	"bloodtest-backend/internal/shared/telemetry"
)

// ErrorBody is the standardized error payload. Detail mirrors the wire
// contract of the original service, so clients key off a single string.
type ErrorBody struct {
	Detail string `json:"detail"`
}

// Error logs and sends a standardized error response.
func Error(c *gin.Context, status int, code, detail string) {
	telemetry.Error("http.error", map[string]any{
		"status":     status,
		"code":       code,
		"detail":     detail,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	})

	c.AbortWithStatusJSON(status, ErrorBody{Detail: detail})
}
