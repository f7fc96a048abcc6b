package render

import (
	"context"

	"github.com/ysmood/gson"
)

// Engine is the browser capability a Renderer drives. Implementations may
// block in Navigate, Evaluate and StopLoading; the renderer never calls them
// from its event loop.
type Engine interface {
	// Subscribe binds the single event sink. The renderer calls it once,
	// from New, before any other method.
	Subscribe(events Events)

	// InjectStartupScript installs code to run in every new top-level document.
	InjectStartupScript(code string) error

	// RegisterMessageChannel exposes a function named name on the page's
	// window. Calls to it are reported through Events.MessageReceived.
	RegisterMessageChannel(name string) error

	Navigate(ctx context.Context, target string) error
	Evaluate(ctx context.Context, script string) (gson.JSON, error)
	StopLoading(ctx context.Context) error
}

// Events is the sink an Engine reports to. Methods may be called from any
// goroutine and must not block.
type Events interface {
	// LoadingChanged reports the engine's busy state for the top-level document.
	LoadingChanged(loading bool)

	// ResponseReceived reports a top-level navigation response.
	ResponseReceived(resp *Response)

	// NavigationFailed reports a top-level navigation failure.
	NavigationFailed(err error)

	// MessageReceived reports a call to a registered message channel.
	MessageReceived(channel string, msg gson.JSON)
}
