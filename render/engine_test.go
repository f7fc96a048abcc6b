package render

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ysmood/gson"
)

// fakeEngine is a scriptable Engine. Navigation and stop reactions run on
// the calling goroutine so the events they emit keep their order.
type fakeEngine struct {
	mu       sync.Mutex
	events   Events
	html     string
	scripts  []string
	channels []string

	navigations []string
	stops       int

	onNavigate func(f *fakeEngine, target string) error
	onStop     func(f *fakeEngine)
	onEval     func(f *fakeEngine, script string) (gson.JSON, error)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{html: "<html><body></body></html>"}
}

func (f *fakeEngine) Subscribe(events Events) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
}

func (f *fakeEngine) InjectStartupScript(code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, code)
	return nil
}

func (f *fakeEngine) RegisterMessageChannel(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, name)
	return nil
}

func (f *fakeEngine) Navigate(_ context.Context, target string) error {
	f.mu.Lock()
	f.navigations = append(f.navigations, target)
	fn := f.onNavigate
	f.mu.Unlock()
	if fn != nil {
		return fn(f, target)
	}
	return nil
}

func (f *fakeEngine) Evaluate(_ context.Context, script string) (gson.JSON, error) {
	if script == serializeScript {
		return gson.New(f.document()), nil
	}
	f.mu.Lock()
	fn := f.onEval
	f.mu.Unlock()
	if fn != nil {
		return fn(f, script)
	}
	return gson.JSON{}, errors.New("unexpected script")
}

func (f *fakeEngine) StopLoading(context.Context) error {
	f.mu.Lock()
	f.stops++
	fn := f.onStop
	f.mu.Unlock()
	if fn != nil {
		fn(f)
	}
	return nil
}

func (f *fakeEngine) setDocument(html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.html = html
}

func (f *fakeEngine) document() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html
}

func (f *fakeEngine) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeEngine) loading(v bool) { f.events.LoadingChanged(v) }

func (f *fakeEngine) respond(url string, status int) {
	f.events.ResponseReceived(&Response{URL: url, StatusCode: status})
}

func (f *fakeEngine) fail(err error) { f.events.NavigationFailed(err) }

func (f *fakeEngine) parsed() {
	f.events.MessageReceived(MessageChannel, gson.New(map[string]interface{}{
		"name":    DoneLoadingMessage,
		"payload": f.document(),
	}))
}

// load simulates a plain successful page load.
func load(html string) func(f *fakeEngine, target string) error {
	return func(f *fakeEngine, target string) error {
		f.loading(true)
		f.respond(target, 200)
		f.setDocument(html)
		f.parsed()
		f.loading(false)
		return nil
	}
}

// recorder counts completions.
type recorder struct {
	mu      sync.Mutex
	results []*Result
	ch      chan *Result
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan *Result, 16)}
}

func (c *recorder) complete(res *Result) {
	c.mu.Lock()
	c.results = append(c.results, res)
	c.mu.Unlock()
	c.ch <- res
}

func (c *recorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func (c *recorder) wait(timeout time.Duration) *Result {
	select {
	case res := <-c.ch:
		return res
	case <-time.After(timeout):
		return nil
	}
}

func (f *fakeEngine) navigated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigations...)
}
