package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/pageready/render"
)

// Engine adapts a rod page to render.Engine. Only events of the page's
// top-level frame are reported.
type Engine struct {
	page *rod.Page
	log  *slog.Logger

	mu          sync.Mutex
	events      render.Events
	mainRequest proto.NetworkRequestID
	cancel      func()
	unbind      []func() error
}

// NewEngine wraps page. Events are not reported until Subscribe.
func NewEngine(page *rod.Page, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{page: page, log: logger}
}

// Subscribe binds the event sink and starts listening to the page's
// CDP events. It must be called once.
func (e *Engine) Subscribe(events render.Events) {
	e.mu.Lock()
	if e.events != nil {
		e.mu.Unlock()
		e.log.Error("browser: engine already subscribed")
		return
	}
	e.events = events
	p, cancel := e.page.WithCancel()
	e.cancel = cancel
	e.mu.Unlock()

	mainFrame := e.page.FrameID

	// EachEvent enables the Page and Network domains for us.
	wait := p.EachEvent(
		func(ev *proto.PageFrameStartedLoading) {
			if ev.FrameID == mainFrame {
				events.LoadingChanged(true)
			}
		},
		func(ev *proto.PageFrameStoppedLoading) {
			if ev.FrameID == mainFrame {
				events.LoadingChanged(false)
			}
		},
		func(ev *proto.NetworkRequestWillBeSent) {
			if ev.Type == proto.NetworkResourceTypeDocument && ev.FrameID == mainFrame {
				e.mu.Lock()
				e.mainRequest = ev.RequestID
				e.mu.Unlock()
			}
		},
		func(ev *proto.NetworkResponseReceived) {
			if ev.Type == proto.NetworkResourceTypeDocument && ev.FrameID == mainFrame {
				events.ResponseReceived(toResponse(ev.Response))
			}
		},
		func(ev *proto.NetworkLoadingFailed) {
			e.mu.Lock()
			main := ev.RequestID == e.mainRequest
			e.mu.Unlock()
			if main {
				events.NavigationFailed(fmt.Errorf("%s", ev.ErrorText))
			}
		},
	)
	go wait()
}

// InjectStartupScript installs code for every new document of the page.
func (e *Engine) InjectStartupScript(code string) error {
	remove, err := e.page.EvalOnNewDocument(code)
	if err != nil {
		return fmt.Errorf("browser: inject startup script: %w", err)
	}
	e.addUnbind(remove)
	return nil
}

// RegisterMessageChannel exposes window[name] to page scripts. Each call
// is reported as a message carrying the call's first argument.
func (e *Engine) RegisterMessageChannel(name string) error {
	stop, err := e.page.Expose(name, func(msg gson.JSON) (interface{}, error) {
		e.mu.Lock()
		events := e.events
		e.mu.Unlock()
		if events != nil {
			events.MessageReceived(name, msg)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("browser: expose %s: %w", name, err)
	}
	e.addUnbind(stop)
	return nil
}

// Navigate starts loading target in the page.
func (e *Engine) Navigate(ctx context.Context, target string) error {
	return e.page.Context(ctx).Navigate(target)
}

// Evaluate runs script as a raw expression, awaiting promises, and returns
// its value by JSON.
func (e *Engine) Evaluate(ctx context.Context, script string) (gson.JSON, error) {
	res, err := proto.RuntimeEvaluate{
		Expression:    script,
		ReturnByValue: true,
		AwaitPromise:  true,
	}.Call(e.page.Context(ctx))
	if err != nil {
		return gson.JSON{}, err
	}
	if ex := res.ExceptionDetails; ex != nil {
		msg := ex.Text
		if ex.Exception != nil && ex.Exception.Description != "" {
			msg = ex.Exception.Description
		}
		return gson.JSON{}, errors.New(msg)
	}
	if res.Result == nil {
		return gson.JSON{}, nil
	}
	return res.Result.Value, nil
}

// StopLoading aborts pending loads. Chrome then reports the frame as stopped.
func (e *Engine) StopLoading(ctx context.Context) error {
	return proto.PageStopLoading{}.Call(e.page.Context(ctx))
}

// Close stops event delivery and removes injected scripts and bindings.
func (e *Engine) Close() {
	e.mu.Lock()
	cancel := e.cancel
	unbind := e.unbind
	e.cancel = nil
	e.unbind = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, fn := range unbind {
		if err := fn(); err != nil {
			e.log.Debug("browser: unbind failed", "error", err)
		}
	}
}

func (e *Engine) addUnbind(fn func() error) {
	e.mu.Lock()
	e.unbind = append(e.unbind, fn)
	e.mu.Unlock()
}

// toResponse converts a CDP response. Chrome folds repeated headers into
// one newline-separated value.
func toResponse(r *proto.NetworkResponse) *render.Response {
	if r == nil {
		return nil
	}
	header := make(http.Header, len(r.Headers))
	for k, v := range r.Headers {
		for _, line := range strings.Split(v.Str(), "\n") {
			header.Add(k, line)
		}
	}
	return &render.Response{
		URL:        r.URL,
		StatusCode: r.Status,
		StatusText: r.StatusText,
		MIMEType:   r.MIMEType,
		Header:     header,
	}
}
