package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/use-agent/pageready/render"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTimeout      = "RENDER_TIMEOUT"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeScript       = "SCRIPT_EVALUATION_FAILED"
	ErrCodeBusy         = "RENDERER_BUSY"
	ErrCodeNotReady     = "PAGE_NEVER_READY"
	ErrCodeFormat       = "FORMAT_FAILED"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RenderError is the internal error type carrying an error code.
type RenderError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// NewRenderError creates a new RenderError.
func NewRenderError(code, message string, err error) *RenderError {
	return &RenderError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *RenderError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// Categorize wraps err into a RenderError so the API layer can map it to
// an HTTP status. RenderErrors pass through unchanged.
func Categorize(err error) *RenderError {
	var re *RenderError
	if errors.As(err, &re) {
		return re
	}

	var navErr *render.NavigationError
	var scriptErr *render.ScriptError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewRenderError(ErrCodeTimeout, "page did not become ready before the deadline", err)
	case errors.Is(err, context.Canceled):
		return NewRenderError(ErrCodeTimeout, "request canceled", err)
	case errors.Is(err, render.ErrRequestInFlight):
		return NewRenderError(ErrCodeBusy, "renderer is busy with another request", err)
	case errors.Is(err, render.ErrValidateExhausted):
		return NewRenderError(ErrCodeNotReady, "validate predicate never became true", err)
	case errors.Is(err, render.ErrRendererClosed):
		return NewRenderError(ErrCodeBrowserCrash, "renderer closed", err)
	case errors.As(err, &navErr):
		return NewRenderError(ErrCodeNavigation, navErr.Error(), err)
	case errors.As(err, &scriptErr):
		return NewRenderError(ErrCodeScript, scriptErr.Error(), err)
	default:
		return NewRenderError(ErrCodeInternal, err.Error(), err)
	}
}
