package models

import (
	"github.com/ysmood/gson"
)

// ResponseInfo is the navigation response the page was loaded with.
type ResponseInfo struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"status_code"`
	StatusText string            `json:"status_text,omitempty"`
	MIMEType   string            `json:"mime_type,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// RenderResponse is the response for POST /api/v1/render.
type RenderResponse struct {
	// Success indicates whether the page rendered without errors.
	Success bool `json:"success"`

	// Content is the captured document in the requested format.
	Content string `json:"content,omitempty"`

	// Format echoes the output format of Content.
	Format string `json:"format,omitempty"`

	// Title is the document title, when one could be read.
	Title string `json:"title,omitempty"`

	// Response is the last navigation response recorded for the page.
	// It is also set on failure.
	Response *ResponseInfo `json:"response,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus is "hit", "miss", or empty when caching was not requested.
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// EvaluateResponse is the response for POST /api/v1/evaluate.
type EvaluateResponse struct {
	Success bool `json:"success"`

	// Value is the script's return value.
	Value gson.JSON `json:"value"`

	// Page is the document the script navigated to, for navigating scripts.
	Page *RenderResponse `json:"page,omitempty"`

	Timing TimingInfo   `json:"timing"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// RenderMs is the time from admission to delivery.
	RenderMs int64 `json:"render_ms"`

	// FormatMs is the time spent converting the captured HTML.
	FormatMs int64 `json:"format_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the renderer pool.
type PoolStats struct {
	MaxPages     int   `json:"max_pages"`
	ActivePages  int   `json:"active_pages"`
	RetiredPages int64 `json:"retired_pages"`
}
