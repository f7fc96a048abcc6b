package models

import (
	"fmt"
	"time"

	"github.com/use-agent/pageready/render"
)

// Post-action kinds accepted on the wire.
const (
	PostActionWait     = "wait"
	PostActionValidate = "validate"
)

// PostActionSpec is the wire form of a post-action.
type PostActionSpec struct {
	// Kind is "wait" or "validate".
	Kind string `json:"kind" binding:"required,oneof=wait validate"`

	// Seconds is the delay for "wait".
	Seconds float64 `json:"seconds,omitempty" binding:"omitempty,min=0,max=120"`

	// Script is the boolean JavaScript predicate for "validate".
	Script string `json:"script,omitempty"`
}

// ToPostAction converts the wire form into a render.PostAction.
// A nil spec yields a nil action.
func (s *PostActionSpec) ToPostAction() (render.PostAction, error) {
	if s == nil {
		return nil, nil
	}
	switch s.Kind {
	case PostActionWait:
		if s.Seconds < 0 {
			return nil, NewRenderError(ErrCodeInvalidInput, "wait seconds must not be negative", nil)
		}
		return render.Wait{Duration: time.Duration(s.Seconds * float64(time.Second))}, nil
	case PostActionValidate:
		if s.Script == "" {
			return nil, NewRenderError(ErrCodeInvalidInput, "validate post_action requires a script", nil)
		}
		return render.Validate{Script: s.Script}, nil
	default:
		return nil, NewRenderError(ErrCodeInvalidInput, fmt.Sprintf("unknown post_action kind %q", s.Kind), nil)
	}
}

// RenderRequest is the payload for POST /api/v1/render.
type RenderRequest struct {
	// URL is the page to render. Required.
	URL string `json:"url" binding:"required,url"`

	// IncludeMedia waits for images and media before capturing.
	// When false, loading is stopped once the document has been parsed.
	// Default: true.
	IncludeMedia *bool `json:"include_media,omitempty"`

	// PostAction runs once the page first goes idle.
	PostAction *PostActionSpec `json:"post_action,omitempty"`

	// Timeout is the deadline in seconds. Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// OutputFormat controls the content field.
	// Allowed: "html" (default), "markdown", "text", "article".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=html markdown text article"`

	// CSSSelector keeps only the matched elements before formatting.
	CSSSelector string `json:"css_selector,omitempty"`

	// MaxAge is the oldest cached response in milliseconds the client accepts.
	// 0 disables caching.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// WebhookURL receives the response as a "render.completed" event.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *RenderRequest) Defaults() {
	if r.IncludeMedia == nil {
		t := true
		r.IncludeMedia = &t
	}
	if r.Timeout == 0 {
		r.Timeout = 30
	}
	if r.OutputFormat == "" {
		r.OutputFormat = "html"
	}
}

// Options converts the request into render options.
func (r *RenderRequest) Options() (render.Options, error) {
	action, err := r.PostAction.ToPostAction()
	if err != nil {
		return render.Options{}, err
	}
	return render.Options{
		SkipMedia:  r.IncludeMedia != nil && !*r.IncludeMedia,
		PostAction: action,
	}, nil
}

// EvaluateRequest is the payload for POST /api/v1/evaluate.
type EvaluateRequest struct {
	// Script is the JavaScript expression to evaluate. Required.
	Script string `json:"script" binding:"required"`

	// URL, when set, is rendered first so the script runs against it.
	URL string `json:"url,omitempty" binding:"omitempty,url"`

	// Navigates marks a script that triggers a navigation. The response then
	// also carries the page it navigated to.
	Navigates bool `json:"navigates,omitempty"`

	// IncludeMedia applies to the page the script navigates to. Default: true.
	IncludeMedia *bool `json:"include_media,omitempty"`

	// PostAction applies to the page the script navigates to.
	PostAction *PostActionSpec `json:"post_action,omitempty"`

	// Timeout is the deadline in seconds. Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`
}

// Defaults applies default values to unset fields.
func (r *EvaluateRequest) Defaults() {
	if r.IncludeMedia == nil {
		t := true
		r.IncludeMedia = &t
	}
	if r.Timeout == 0 {
		r.Timeout = 30
	}
}

// Options converts the request into script options.
func (r *EvaluateRequest) Options() (render.ScriptOptions, error) {
	action, err := r.PostAction.ToPostAction()
	if err != nil {
		return render.ScriptOptions{}, err
	}
	return render.ScriptOptions{
		Navigates: r.Navigates,
		Options: render.Options{
			SkipMedia:  r.IncludeMedia != nil && !*r.IncludeMedia,
			PostAction: action,
		},
	}, nil
}
