package render

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"
)

const waitLimit = 2 * time.Second

func newTestRenderer(t *testing.T, f *fakeEngine, cfg Config) *Renderer {
	t.Helper()
	r, err := New(f, cfg)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestNewInstallsChannelAndStartupScript(t *testing.T) {
	f := newFakeEngine()
	newTestRenderer(t, f, Config{})

	assert.NotNil(t, f.events)
	assert.Equal(t, []string{MessageChannel}, f.channels)
	require.Len(t, f.scripts, 1)
	assert.Contains(t, f.scripts[0], DoneLoadingMessage)
	assert.Contains(t, f.scripts[0], "DOMContentLoaded")
}

func TestRenderDeliversOnIdle(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = load("<html><body>done</body></html>")
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Render(ctx, "https://example.com/", Options{})
	require.NoError(t, err)
	assert.Equal(t, "<html><body>done</body></html>", string(res.HTML))
	require.NotNil(t, res.Response)
	assert.Equal(t, 200, res.Response.StatusCode)
	assert.Equal(t, "https://example.com/", res.Response.URL)
	assert.Equal(t, []string{"https://example.com/"}, f.navigated())
}

func TestDeliversExactlyOnce(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = func(f *fakeEngine, target string) error {
		f.loading(true)
		f.respond(target, 200)
		f.parsed()
		f.loading(false)
		f.loading(false)
		f.parsed()
		f.loading(true)
		f.loading(false)
		f.fail(errors.New("net::ERR_ABORTED"))
		f.respond(target, 500)
		f.fail(errors.New("net::ERR_FAILED"))
		return nil
	}
	r := newTestRenderer(t, f, Config{})

	rec := newRecorder()
	require.NoError(t, r.Start("https://example.com/", Options{}, rec.complete))
	require.NotNil(t, rec.wait(waitLimit))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestConcurrentRequestRejected(t *testing.T) {
	f := newFakeEngine()
	r := newTestRenderer(t, f, Config{})

	a := newRecorder()
	b := newRecorder()
	require.NoError(t, r.Start("https://a.example/", Options{}, a.complete))

	err := r.Start("https://b.example/", Options{}, b.complete)
	assert.ErrorIs(t, err, ErrRequestInFlight)

	err = r.RunScript("location.href = '/x'", ScriptOptions{Navigates: true}, nil)
	assert.ErrorIs(t, err, ErrRequestInFlight)

	f.loading(true)
	f.respond("https://a.example/", 200)
	f.loading(false)

	res := a.wait(waitLimit)
	require.NotNil(t, res)
	assert.Equal(t, "https://a.example/", res.Response.URL)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 0, b.count())
	assert.Equal(t, []string{"https://a.example/"}, f.navigated())
}

func TestRenderRejectedWhileBusy(t *testing.T) {
	f := newFakeEngine()
	r := newTestRenderer(t, f, Config{})

	require.NoError(t, r.Start("https://a.example/", Options{}, nil))

	_, err := r.Render(context.Background(), "https://b.example/", Options{})
	assert.ErrorIs(t, err, ErrRequestInFlight)
}

func TestNextRequestAdmittedAfterDelivery(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = load("<p>page</p>")
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	first, err := r.Render(ctx, "https://example.com/1", Options{})
	require.NoError(t, err)
	second, err := r.Render(ctx, "https://example.com/2", Options{})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/1", first.Response.URL)
	assert.Equal(t, "https://example.com/2", second.Response.URL)
}

func TestCompletionMayStartNextRequest(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = load("<p>page</p>")
	r := newTestRenderer(t, f, Config{})

	second := newRecorder()
	var startErr error
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, r.Start("https://example.com/1", Options{}, func(*Result) {
		defer wg.Done()
		startErr = r.Start("https://example.com/2", Options{}, second.complete)
	}))
	wg.Wait()

	require.NoError(t, startErr)
	res := second.wait(waitLimit)
	require.NotNil(t, res)
	assert.Equal(t, "https://example.com/2", res.Response.URL)
}

func TestIdleBeforeLoadingIsIgnored(t *testing.T) {
	f := newFakeEngine()
	r := newTestRenderer(t, f, Config{})

	rec := newRecorder()
	require.NoError(t, r.Start("https://example.com/", Options{}, rec.complete))

	// left over from the previous document
	f.loading(false)
	assert.Nil(t, rec.wait(50*time.Millisecond))

	f.loading(true)
	f.loading(false)
	assert.NotNil(t, rec.wait(waitLimit))
}

func TestSkipMediaStopsOnEarlySignal(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = func(f *fakeEngine, target string) error {
		f.loading(true)
		f.respond(target, 200)
		f.setDocument("<img src=a.png>partial")
		f.parsed()
		go func() {
			time.Sleep(300 * time.Millisecond)
			f.setDocument("<img src=a.png>full")
			f.loading(false)
		}()
		return nil
	}
	f.onStop = func(f *fakeEngine) { f.loading(false) }
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	start := time.Now()
	res, err := r.Render(ctx, "https://example.com/", Options{SkipMedia: true})
	require.NoError(t, err)
	assert.Equal(t, "<img src=a.png>partial", string(res.HTML))
	assert.Less(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, 1, f.stopCount())
}

func TestIncludeMediaIgnoresEarlySignal(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = func(f *fakeEngine, target string) error {
		f.loading(true)
		f.respond(target, 200)
		f.setDocument("partial")
		f.parsed()
		go func() {
			time.Sleep(50 * time.Millisecond)
			f.setDocument("full")
			f.loading(false)
		}()
		return nil
	}
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Render(ctx, "https://example.com/", Options{})
	require.NoError(t, err)
	assert.Equal(t, "full", string(res.HTML))
	assert.Equal(t, 0, f.stopCount())
}

func TestEarlySignalActsOncePerRequest(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = func(f *fakeEngine, target string) error {
		f.loading(true)
		f.parsed()
		f.parsed()
		f.parsed()
		return nil
	}
	f.onStop = func(f *fakeEngine) { f.loading(false) }
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	_, err := r.Render(ctx, "https://example.com/", Options{SkipMedia: true})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.stopCount())
}

func TestUnrelatedMessagesIgnored(t *testing.T) {
	f := newFakeEngine()
	r := newTestRenderer(t, f, Config{})
	require.NoError(t, r.Start("https://example.com/", Options{SkipMedia: true}, nil))

	f.loading(true)
	f.events.MessageReceived("other", gson.New(map[string]interface{}{"name": DoneLoadingMessage}))
	f.events.MessageReceived(MessageChannel, gson.New(map[string]interface{}{"name": "hello"}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.stopCount())
}

func TestWaitPostAction(t *testing.T) {
	const delay = 150 * time.Millisecond

	var idleAt time.Time
	f := newFakeEngine()
	f.onNavigate = func(f *fakeEngine, target string) error {
		f.loading(true)
		f.respond(target, 200)
		idleAt = time.Now()
		f.loading(false)
		// redundant idles during the wait must not capture early
		f.loading(true)
		f.loading(false)
		return nil
	}
	r := newTestRenderer(t, f, Config{})

	rec := newRecorder()
	require.NoError(t, r.Start("https://example.com/", Options{PostAction: Wait{Duration: delay}}, rec.complete))

	res := rec.wait(waitLimit)
	require.NotNil(t, res)
	deliveredAt := time.Now()
	assert.GreaterOrEqual(t, deliveredAt.Sub(idleAt), delay)
	require.NoError(t, res.Err)

	time.Sleep(delay)
	assert.Equal(t, 1, rec.count())
}

func TestValidatePostActionPolls(t *testing.T) {
	const interval = 30 * time.Millisecond
	const script = "window.ready === true"

	var mu sync.Mutex
	var calls []time.Time
	f := newFakeEngine()
	f.onNavigate = load("loading")
	f.onEval = func(f *fakeEngine, s string) (gson.JSON, error) {
		if s != script {
			return gson.JSON{}, errors.New("unexpected script")
		}
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, time.Now())
		if len(calls) < 3 {
			return gson.New(false), nil
		}
		f.setDocument("ready")
		return gson.New(true), nil
	}
	r := newTestRenderer(t, f, Config{ValidateInterval: interval})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Render(ctx, "https://example.com/", Options{PostAction: Validate{Script: script}})
	require.NoError(t, err)
	assert.Equal(t, "ready", string(res.HTML))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 3)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), interval)
	}
}

func TestValidateTreatsNonBooleanAndErrorsAsFalse(t *testing.T) {
	results := []func() (gson.JSON, error){
		func() (gson.JSON, error) { return gson.New("true"), nil },
		func() (gson.JSON, error) { return gson.New(1), nil },
		func() (gson.JSON, error) { return gson.JSON{}, errors.New("ReferenceError: ready is not defined") },
		func() (gson.JSON, error) { return gson.New(true), nil },
	}

	var mu sync.Mutex
	n := 0
	f := newFakeEngine()
	f.onNavigate = load("doc")
	f.onEval = func(*fakeEngine, string) (gson.JSON, error) {
		mu.Lock()
		defer mu.Unlock()
		fn := results[n]
		n++
		return fn()
	}
	r := newTestRenderer(t, f, Config{ValidateInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	_, err := r.Render(ctx, "https://example.com/", Options{PostAction: Validate{Script: "ready"}})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, n)
}

func TestValidatePollCap(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = load("doc")
	f.onEval = func(*fakeEngine, string) (gson.JSON, error) { return gson.New(false), nil }
	r := newTestRenderer(t, f, Config{ValidateInterval: 5 * time.Millisecond, MaxValidatePolls: 3})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Render(ctx, "https://example.com/", Options{PostAction: Validate{Script: "false"}})
	assert.ErrorIs(t, err, ErrValidateExhausted)
	require.NotNil(t, res)
	assert.Nil(t, res.HTML)
	assert.Equal(t, 200, res.Response.StatusCode)
}

func TestFailureShortCircuitsPostAction(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = func(f *fakeEngine, target string) error {
		f.loading(true)
		f.respond(target, 404)
		f.loading(false)
		f.fail(errors.New("net::ERR_HTTP_RESPONSE_CODE_FAILURE"))
		return nil
	}
	f.onEval = func(*fakeEngine, string) (gson.JSON, error) { return gson.New(false), nil }
	r := newTestRenderer(t, f, Config{ValidateInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Render(ctx, "https://example.com/missing", Options{PostAction: Validate{Script: "false"}})
	require.Error(t, err)
	require.NotNil(t, res)

	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, 404, navErr.Response.StatusCode)
	assert.Nil(t, res.HTML)
	assert.Equal(t, 404, res.Response.StatusCode)
}

func TestNavigateErrorWithNon2xxResponse(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = func(f *fakeEngine, target string) error {
		f.loading(true)
		f.respond(target, 503)
		return errors.New("navigation aborted")
	}
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Render(ctx, "https://example.com/", Options{})
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, 503, res.Response.StatusCode)
}

func TestFailureAfterSuccessIsIgnored(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = func(f *fakeEngine, target string) error {
		f.loading(true)
		f.respond(target, 200)
		f.fail(errors.New("net::ERR_ABORTED"))
		f.setDocument("ok")
		f.loading(false)
		return nil
	}
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Render(ctx, "https://example.com/", Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(res.HTML))
}

func TestFailureWithoutResponseIsIgnored(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = func(f *fakeEngine, target string) error {
		f.loading(true)
		f.fail(errors.New("net::ERR_NAME_NOT_RESOLVED"))
		f.setDocument("error page")
		f.loading(false)
		return nil
	}
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Render(ctx, "https://nowhere.invalid/", Options{})
	require.NoError(t, err)
	assert.Equal(t, "error page", string(res.HTML))
	assert.Nil(t, res.Response)
}

func TestResponseOverwrittenOnRedirect(t *testing.T) {
	f := newFakeEngine()
	f.onNavigate = func(f *fakeEngine, target string) error {
		f.loading(true)
		f.respond("https://example.com/old", 302)
		f.respond("https://example.com/new", 200)
		f.loading(false)
		return nil
	}
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Render(ctx, "https://example.com/old", Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", res.Response.URL)
	assert.Equal(t, 200, res.Response.StatusCode)
}

func TestRunScriptWithoutNavigationBypassesRace(t *testing.T) {
	f := newFakeEngine()
	f.onEval = func(_ *fakeEngine, s string) (gson.JSON, error) {
		if s == "1 + 1" {
			return gson.New(2), nil
		}
		return gson.JSON{}, errors.New("SyntaxError")
	}
	r := newTestRenderer(t, f, Config{})

	// an unrelated render is in flight
	require.NoError(t, r.Start("https://example.com/", Options{}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Evaluate(ctx, "1 + 1", ScriptOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Value.Int())
	assert.Nil(t, res.Page)

	_, err = r.Evaluate(ctx, "(", ScriptOptions{})
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, "(", scriptErr.Script)
}

func TestRunScriptThatNavigates(t *testing.T) {
	f := newFakeEngine()
	f.onEval = func(f *fakeEngine, s string) (gson.JSON, error) {
		go func() {
			f.loading(true)
			f.respond("https://example.com/next", 200)
			f.setDocument("next")
			f.loading(false)
		}()
		return gson.New("https://example.com/next"), nil
	}
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Evaluate(ctx, "location.href = '/next'", ScriptOptions{Navigates: true})
	require.NoError(t, err)
	require.NotNil(t, res.Page)
	assert.Equal(t, "next", string(res.Page.HTML))
	assert.Equal(t, "https://example.com/next", res.Page.Response.URL)
	assert.Empty(t, f.navigated())
}

func TestRunScriptThatNavigatesFailsBeforeLoading(t *testing.T) {
	f := newFakeEngine()
	f.onEval = func(*fakeEngine, string) (gson.JSON, error) {
		return gson.JSON{}, errors.New("TypeError: x is undefined")
	}
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()

	res, err := r.Evaluate(ctx, "x.click()", ScriptOptions{Navigates: true})
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	require.NotNil(t, res.Page)
	assert.Nil(t, res.Page.HTML)

	// the slot is free again
	f.onNavigate = load("after")
	_, err = r.Render(ctx, "https://example.com/", Options{})
	require.NoError(t, err)
}

func TestRenderContextExpiryLeavesRequestInFlight(t *testing.T) {
	f := newFakeEngine()
	r := newTestRenderer(t, f, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Render(ctx, "https://slow.example/", Options{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = r.Start("https://other.example/", Options{}, nil)
	assert.ErrorIs(t, err, ErrRequestInFlight)
}

func TestClosedRendererRejects(t *testing.T) {
	f := newFakeEngine()
	r, err := New(f, Config{})
	require.NoError(t, err)
	r.Close()

	err = r.Start("https://example.com/", Options{}, nil)
	assert.ErrorIs(t, err, ErrRendererClosed)
}
