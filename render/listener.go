package render

import (
	"github.com/ysmood/gson"
)

const (
	// MessageChannel is the name of the window function the startup script
	// posts through.
	MessageChannel = "__pagereadyPost"

	// DoneLoadingMessage is posted once the initial document has been parsed.
	DoneLoadingMessage = "doneLoading"
)

// startupScript runs in every new top-level document and posts the current
// outer HTML once parsing has finished, before images and media are loaded.
const startupScript = `(() => {
	if (window !== window.top) return;
	const post = () => {
		const send = window["` + MessageChannel + `"];
		if (typeof send !== "function") return;
		send({ name: "` + DoneLoadingMessage + `", payload: document.documentElement.outerHTML });
	};
	if (document.readyState === "loading") {
		document.addEventListener("DOMContentLoaded", post, { once: true });
	} else {
		post();
	}
})();`

// onMessage handles the early signal. When media is skipped the engine is
// force-stopped, which in turn produces the idle transition that completes
// the request. Otherwise the signal is informational.
func (r *Renderer) onMessage(channel string, msg gson.JSON) {
	if channel != MessageChannel || msg.Get("name").Str() != DoneLoadingMessage {
		return
	}
	req := r.active
	if req == nil || req.signaled {
		return
	}
	req.signaled = true
	// a parsed document proves a navigation is underway
	req.loading = true

	if !req.opts.SkipMedia || req.phase != phaseLoading {
		r.log.Debug("render: document parsed", "id", req.id, "target", req.target)
		return
	}

	r.log.Debug("render: document parsed, stopping media load", "id", req.id, "target", req.target)
	go func() {
		if err := r.engine.StopLoading(r.ctx); err != nil {
			r.log.Warn("render: stop loading failed", "id", req.id, "error", err)
		}
	}()
}
