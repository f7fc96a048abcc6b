// Package render decides when a dynamically loading page is ready and hands
// back its serialized HTML together with the last navigation response.
//
// A Renderer owns at most one request at a time. Completion is arbitrated
// between the engine's busy state, an early in-page signal fired at the end
// of document parsing, an optional post-action (fixed wait or polled
// predicate) and navigation failures. Every admitted request delivers
// exactly one Result.
//
// State is owned by a single event loop. Engine callbacks and timer
// continuations are posted onto it, and blocking engine calls run on their
// own goroutines and post their outcome back.
package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/ysmood/gson"
)

// DefaultValidateInterval is the pause between two Validate polls.
const DefaultValidateInterval = 500 * time.Millisecond

// Config tunes a Renderer. The zero value is usable.
type Config struct {
	// ValidateInterval is the backoff between Validate polls.
	ValidateInterval time.Duration

	// MaxValidatePolls caps Validate polling. Zero polls forever.
	MaxValidatePolls int

	Logger *slog.Logger
}

type phase int

const (
	phaseLoading  phase = iota // waiting for the first idle transition
	phaseSettling              // post-action running
	phaseFetching              // serialization in flight
)

// request is the in-flight state of one admitted request.
type request struct {
	id     uint64
	target string
	opts   Options

	// pending is cleared once the post-action starts.
	pending    PostAction
	onComplete Completion
	onScript   ScriptCompletion
	value      gson.JSON

	response *Response
	err      error

	loading  bool
	signaled bool
	phase    phase
	polls    int
	started  time.Time
}

// Renderer drives one Engine. Its methods are safe for concurrent use but
// only one request is admitted at a time.
type Renderer struct {
	engine Engine
	cfg    Config
	log    *slog.Logger
	loop   *loop

	ctx    context.Context
	cancel context.CancelFunc

	// owned by loop
	active *request
	nextID uint64
}

// New binds a Renderer to engine, installing the early-signal channel and
// startup script.
func New(engine Engine, cfg Config) (*Renderer, error) {
	if cfg.ValidateInterval <= 0 {
		cfg.ValidateInterval = DefaultValidateInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Renderer{
		engine: engine,
		cfg:    cfg,
		log:    logger,
		loop:   newLoop(),
		ctx:    ctx,
		cancel: cancel,
	}

	engine.Subscribe(sink{r})
	if err := engine.RegisterMessageChannel(MessageChannel); err != nil {
		r.Close()
		return nil, err
	}
	if err := engine.InjectStartupScript(startupScript); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Close stops the event loop. An in-flight request is abandoned without
// delivery.
func (r *Renderer) Close() {
	r.cancel()
	r.loop.close()
}

// Start admits a render request for target and navigates to it. It returns
// ErrRequestInFlight when another request is active; onComplete is then
// never called.
func (r *Renderer) Start(target string, opts Options, onComplete Completion) error {
	req := &request{
		target:     target,
		opts:       opts,
		pending:    opts.PostAction,
		onComplete: onComplete,
	}
	return r.admit(req, r.navigate)
}

// RunScript evaluates script in the current document. Unless opts.Navigates
// is set the evaluation bypasses the completion race and onComplete receives
// only the script value. With Navigates the script replaces navigation as the
// trigger of a render request and onComplete also receives the page.
func (r *Renderer) RunScript(script string, opts ScriptOptions, onComplete ScriptCompletion) error {
	if onComplete == nil {
		onComplete = func(*ScriptResult) {}
	}

	if !opts.Navigates {
		go func() {
			v, err := r.engine.Evaluate(r.ctx, script)
			if err != nil {
				err = &ScriptError{Script: script, Err: err}
			}
			onComplete(&ScriptResult{Value: v, Err: err})
		}()
		return nil
	}

	req := &request{
		target:   "script",
		opts:     opts.Options,
		pending:  opts.PostAction,
		onScript: onComplete,
	}
	return r.admit(req, func(req *request) {
		go func() {
			v, err := r.engine.Evaluate(r.ctx, script)
			r.loop.post(func() {
				if !r.current(req) {
					return
				}
				if err == nil {
					req.value = v
					return
				}
				r.onTriggerFailed(req, &ScriptError{Script: script, Err: err})
			})
		}()
	})
}

// Render is the blocking form of Start. A done ctx returns ctx.Err() but
// does not cancel the in-flight request.
func (r *Renderer) Render(ctx context.Context, target string, opts Options) (*Result, error) {
	done := make(chan *Result, 1)
	if err := r.Start(target, opts, func(res *Result) { done <- res }); err != nil {
		return nil, err
	}
	select {
	case res := <-done:
		return res, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Evaluate is the blocking form of RunScript.
func (r *Renderer) Evaluate(ctx context.Context, script string, opts ScriptOptions) (*ScriptResult, error) {
	done := make(chan *ScriptResult, 1)
	if err := r.RunScript(script, opts, func(res *ScriptResult) { done <- res }); err != nil {
		return nil, err
	}
	select {
	case res := <-done:
		return res, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// admit installs req as the active request and runs trigger on the loop.
func (r *Renderer) admit(req *request, trigger func(*request)) error {
	reply := make(chan error, 1)
	ok := r.loop.post(func() {
		if r.active != nil {
			r.log.Warn("render: request rejected, another request is in flight",
				"target", req.target,
				"active", r.active.target,
				"activeID", r.active.id,
			)
			reply <- ErrRequestInFlight
			return
		}
		r.nextID++
		req.id = r.nextID
		req.started = time.Now()
		r.active = req
		r.log.Debug("render: request admitted", "id", req.id, "target", req.target)
		reply <- nil
		trigger(req)
	})
	if !ok {
		return ErrRendererClosed
	}

	select {
	case err := <-reply:
		return err
	case <-r.loop.done:
		return ErrRendererClosed
	}
}

func (r *Renderer) navigate(req *request) {
	go func() {
		if err := r.engine.Navigate(r.ctx, req.target); err != nil {
			r.loop.post(func() {
				if r.current(req) {
					r.onNavigationFailed(err)
				}
			})
		}
	}()
}

// onTriggerFailed handles a navigating script that failed before any
// navigation started. Once loading is underway the failure is most likely the
// old execution context being torn down and is ignored.
func (r *Renderer) onTriggerFailed(req *request, err error) {
	if !r.current(req) {
		return
	}
	if req.loading {
		r.log.Debug("render: trigger script failed after navigation started",
			"id", req.id, "error", err)
		return
	}
	req.err = err
	r.deliver(req, nil)
}

func (r *Renderer) current(req *request) bool {
	return r.active == req
}

// deliver is the single exit point of a request. It clears the active slot
// before handing the result to the completion on its own goroutine, so a
// completion may start the next request.
func (r *Renderer) deliver(req *request, html []byte) {
	if !r.current(req) {
		return
	}
	r.active = nil

	res := &Result{
		HTML:     html,
		Response: req.response,
		Err:      req.err,
	}
	r.log.Debug("render: delivered",
		"id", req.id,
		"target", req.target,
		"bytes", len(html),
		"error", req.err,
		"elapsed", time.Since(req.started),
	)
	switch {
	case req.onScript != nil:
		go req.onScript(&ScriptResult{Value: req.value, Err: res.Err, Page: res})
	case req.onComplete != nil:
		go req.onComplete(res)
	}
}

// sink posts engine events onto the loop.
type sink struct {
	r *Renderer
}

func (s sink) LoadingChanged(loading bool) {
	s.r.loop.post(func() { s.r.onLoadingChanged(loading) })
}

func (s sink) ResponseReceived(resp *Response) {
	s.r.loop.post(func() { s.r.onResponse(resp) })
}

func (s sink) NavigationFailed(err error) {
	s.r.loop.post(func() { s.r.onNavigationFailed(err) })
}

func (s sink) MessageReceived(channel string, msg gson.JSON) {
	s.r.loop.post(func() { s.r.onMessage(channel, msg) })
}
