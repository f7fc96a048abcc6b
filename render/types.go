package render

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ysmood/gson"
)

var (
	// ErrRequestInFlight is returned by Start and RunScript when the renderer
	// already has an admitted request. The rejected completion is never called.
	ErrRequestInFlight = errors.New("render: another request is in flight")

	// ErrRendererClosed is returned once Close has been called.
	ErrRendererClosed = errors.New("render: renderer closed")

	// ErrValidateExhausted is delivered when a Validate post-action hits the
	// configured poll cap without its predicate returning true.
	ErrValidateExhausted = errors.New("render: validate predicate never became true")
)

// PostAction is a deferred step run after the page is structurally loaded
// and before its HTML is captured. It is either Wait or Validate.
type PostAction interface {
	postAction()
}

// Wait delays the capture by a fixed duration.
type Wait struct {
	Duration time.Duration
}

// Validate re-evaluates Script until it returns the boolean true.
type Validate struct {
	Script string
}

func (Wait) postAction()     {}
func (Validate) postAction() {}

func (w Wait) String() string     { return fmt.Sprintf("wait(%s)", w.Duration) }
func (v Validate) String() string { return fmt.Sprintf("validate(%q)", v.Script) }

// Options tunes a single render request.
type Options struct {
	// SkipMedia stops page loading as soon as the initial document has been
	// parsed instead of waiting for images and media.
	SkipMedia bool

	// PostAction is run once the page first goes idle. Nil captures immediately.
	PostAction PostAction
}

// ScriptOptions tunes RunScript.
type ScriptOptions struct {
	// Navigates marks the script as one that triggers a navigation. The
	// script then takes part in the completion race like Start does.
	Navigates bool

	Options
}

// Response is the metadata of a navigation response reported by the engine.
type Response struct {
	URL        string      `json:"url"`
	StatusCode int         `json:"status_code"`
	StatusText string      `json:"status_text,omitempty"`
	MIMEType   string      `json:"mime_type,omitempty"`
	Header     http.Header `json:"headers,omitempty"`
}

// IsHTTP reports whether the response carries an HTTP status. Responses for
// data:, file: or about: documents do not.
func (r *Response) IsHTTP() bool {
	return r != nil && r.StatusCode != 0
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode <= 299
}

// Result is what a render request delivers. Exactly one of HTML and Err is
// meaningful; Response holds the last navigation response seen, if any.
type Result struct {
	HTML     []byte
	Response *Response
	Err      error
}

// Completion receives the result of an admitted request, at most once.
type Completion func(*Result)

// ScriptResult is what RunScript delivers. Page is set only for scripts
// that navigate.
type ScriptResult struct {
	Value gson.JSON
	Err   error
	Page  *Result
}

// ScriptCompletion receives the result of RunScript.
type ScriptCompletion func(*ScriptResult)

// NavigationError is delivered when the engine reports a failure after a
// non-2xx HTTP response was recorded.
type NavigationError struct {
	Response *Response
	Err      error
}

func (e *NavigationError) Error() string {
	if e.Response != nil {
		return fmt.Sprintf("navigation failed with HTTP %d for %s: %v", e.Response.StatusCode, e.Response.URL, e.Err)
	}
	return fmt.Sprintf("navigation failed: %v", e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ScriptError wraps an in-page evaluation failure.
type ScriptError struct {
	Script string
	Err    error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script evaluation failed: %v", e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }
