package render

// onLoadingChanged is the default completion trigger. Only the first idle
// transition after loading began counts; later ones are ignored.
func (r *Renderer) onLoadingChanged(loading bool) {
	req := r.active
	if req == nil {
		return
	}
	if loading {
		req.loading = true
		return
	}
	if !req.loading || req.phase != phaseLoading {
		return
	}

	r.log.Debug("render: page idle", "id", req.id, "target", req.target)
	action := req.pending
	req.pending = nil
	if action == nil {
		r.fetchAndDeliver(req)
		return
	}
	req.phase = phaseSettling
	r.runPostAction(req, action)
}

// onResponse records the latest navigation response. Redirect chains
// overwrite earlier entries.
func (r *Renderer) onResponse(resp *Response) {
	req := r.active
	if req == nil || resp == nil {
		return
	}
	req.response = resp
}

// onNavigationFailed aborts the request when the last recorded response is
// a non-2xx HTTP response. Other failures, such as cancellations after a
// successful load, are ignored.
func (r *Renderer) onNavigationFailed(err error) {
	req := r.active
	if req == nil {
		return
	}
	resp := req.response
	if !resp.IsHTTP() || resp.OK() {
		r.log.Debug("render: ignoring navigation failure",
			"id", req.id, "target", req.target, "error", err)
		return
	}

	r.log.Info("render: navigation failed",
		"id", req.id,
		"target", req.target,
		"status", resp.StatusCode,
		"error", err,
	)
	req.err = &NavigationError{Response: resp, Err: err}
	r.deliver(req, nil)
}
