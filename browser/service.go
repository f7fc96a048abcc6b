package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/pageready/config"
	"github.com/use-agent/pageready/models"
	"github.com/use-agent/pageready/render"
)

// slot is one browser tab with its own renderer. A renderer admits a single
// request at a time, so a slot is leased to one caller at a time.
type slot struct {
	id       int64
	page     *rod.Page
	engine   *Engine
	renderer *render.Renderer
	router   *rod.HijackRouter
	health   *health
}

func (sl *slot) close() {
	if sl.renderer != nil {
		sl.renderer.Close()
	}
	if sl.engine != nil {
		sl.engine.Close()
	}
	if sl.router != nil {
		_ = sl.router.Stop()
	}
	if sl.page != nil {
		_ = sl.page.Close()
	}
}

// Service manages the browser lifecycle and a pool of renderer slots.
// It is safe for concurrent use.
type Service struct {
	browser     *rod.Browser
	pool        rod.Pool[slot]
	browserCfg  config.BrowserConfig
	rendererCfg config.RendererConfig
	rules       *blockRules

	nextID       atomic.Int64
	activePages  atomic.Int32
	retiredPages atomic.Int64
}

// NewService launches a headless browser and prepares the slot pool.
// Slots are created lazily on first use.
func NewService(browserCfg config.BrowserConfig, rendererCfg config.RendererConfig) (*Service, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewRenderError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewRenderError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	maxPages := browserCfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	pool := make(rod.Pool[slot], maxPages)
	for i := 0; i < maxPages; i++ {
		pool.Put(nil)
	}
	slog.Info("renderer pool created", "maxPages", maxPages)

	return &Service{
		browser:     browser,
		pool:        pool,
		browserCfg:  browserCfg,
		rendererCfg: rendererCfg,
		rules:       newBlockRules(browserCfg.BlockedResourceTypes, browserCfg.BlockAds),
	}, nil
}

// Render renders req.URL on a leased slot.
//
// The returned result is non-nil whenever the renderer delivered, even on
// error, so callers can report the response the page was loaded with.
func (s *Service) Render(ctx context.Context, req *models.RenderRequest) (*render.Result, error) {
	opts, err := req.Options()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout(req.Timeout))
	defer cancel()

	sl, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	res, err := sl.renderer.Render(ctx, req.URL, opts)
	s.release(sl, err)
	if err != nil {
		return res, models.Categorize(err)
	}
	return res, nil
}

// Evaluate runs req.Script on a leased slot, rendering req.URL first when set.
func (s *Service) Evaluate(ctx context.Context, req *models.EvaluateRequest) (*render.ScriptResult, error) {
	opts, err := req.Options()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout(req.Timeout))
	defer cancel()

	sl, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	if req.URL != "" {
		if _, err := sl.renderer.Render(ctx, req.URL, render.Options{}); err != nil {
			s.release(sl, err)
			return nil, models.Categorize(err)
		}
	}

	res, err := sl.renderer.Evaluate(ctx, req.Script, opts)
	s.release(sl, err)
	if err != nil {
		return res, models.Categorize(err)
	}
	return res, nil
}

// Stats returns a snapshot of the pool's current state.
func (s *Service) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:     cap(s.pool),
		ActivePages:  int(s.activePages.Load()),
		RetiredPages: s.retiredPages.Load(),
	}
}

// Close drains the pool and kills the browser process.
func (s *Service) Close() {
	slog.Info("renderer pool shutting down: draining slots")
	s.pool.Cleanup(func(sl *slot) {
		sl.close()
	})
	slog.Info("renderer pool shutting down: closing browser")
	if err := s.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("renderer pool shutdown complete")
}

func (s *Service) timeout(seconds int) time.Duration {
	timeout := time.Duration(seconds) * time.Second
	if timeout <= 0 {
		timeout = s.rendererCfg.DefaultTimeout
	}
	if limit := s.rendererCfg.MaxTimeout; limit > 0 && timeout > limit {
		timeout = limit
	}
	return timeout
}

// acquire leases a slot, creating its page on first use.
func (s *Service) acquire(ctx context.Context) (*slot, error) {
	var sl *slot
	select {
	case sl = <-s.pool:
	case <-ctx.Done():
		return nil, models.Categorize(ctx.Err())
	}
	if sl != nil {
		return sl, nil
	}

	sl, err := s.newSlot()
	if err != nil {
		s.pool.Put(nil)
		return nil, models.NewRenderError(
			models.ErrCodeBrowserCrash,
			"failed to create renderer page",
			err,
		)
	}
	return sl, nil
}

// release returns sl to the pool or retires it. A slot whose request was
// abandoned by its deadline still has that request in flight and can never
// admit another one, so it is always retired.
func (s *Service) release(sl *slot, err error) {
	var navErr *render.NavigationError
	switch {
	case err == nil, errors.As(err, &navErr):
		sl.health.RecordSuccess()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.retire(sl, "request abandoned in flight")
		return
	default:
		sl.health.RecordFailure()
	}

	if sl.health.ShouldRetire() {
		s.retire(sl, "health")
		return
	}
	s.pool.Put(sl)
}

func (s *Service) retire(sl *slot, reason string) {
	slog.Info("retiring renderer slot", "slot", sl.id, "reason", reason)
	s.retiredPages.Add(1)
	go sl.close()
	s.pool.Put(nil)
}

func (s *Service) newSlot() (*slot, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}

	if s.browserCfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	var router *rod.HijackRouter
	if s.rules != nil {
		router = s.rules.hijack(page)
	}

	id := s.nextID.Add(1)
	logger := slog.Default().With("slot", id)
	engine := NewEngine(page, logger)
	renderer, err := render.New(engine, render.Config{
		ValidateInterval: s.rendererCfg.ValidateInterval,
		MaxValidatePolls: s.rendererCfg.MaxValidatePolls,
		Logger:           logger,
	})
	if err != nil {
		engine.Close()
		if router != nil {
			_ = router.Stop()
		}
		_ = page.Close()
		return nil, err
	}

	slog.Debug("renderer slot created", "slot", id)
	return &slot{
		id:       id,
		page:     page,
		engine:   engine,
		renderer: renderer,
		router:   router,
		health:   newHealth(),
	}, nil
}
