package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/pageready/models"
	"github.com/use-agent/pageready/render"
)

// Renderer is the page-rendering backend the handlers drive.
// *browser.Service satisfies it.
type Renderer interface {
	Render(ctx context.Context, req *models.RenderRequest) (*render.Result, error)
	Evaluate(ctx context.Context, req *models.EvaluateRequest) (*render.ScriptResult, error)
	Stats() models.PoolStats
}

// requestID returns the caller's X-Request-ID or a fresh one, and echoes it.
func requestID(c *gin.Context) string {
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Header("X-Request-ID", id)
	return id
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.RenderError) int {
	switch e.Code {
	case models.ErrCodeTimeout, models.ErrCodeNotReady:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeScript:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeBusy:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

func invalidInput(err error) *models.ErrorDetail {
	return &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()}
}
