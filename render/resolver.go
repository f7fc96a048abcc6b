package render

import (
	"github.com/ysmood/gson"
)

// serializeScript captures the live document, doctype included.
const serializeScript = `(() => {
	const dt = document.doctype ? new XMLSerializer().serializeToString(document.doctype) : "";
	return dt + document.documentElement.outerHTML;
})()`

func (r *Renderer) runPostAction(req *request, action PostAction) {
	switch a := action.(type) {
	case Wait:
		r.log.Debug("render: waiting before capture", "id", req.id, "duration", a.Duration)
		r.loop.after(a.Duration, func() {
			if r.current(req) {
				r.fetchAndDeliver(req)
			}
		})
	case Validate:
		r.poll(req, a)
	default:
		r.log.Error("render: unknown post-action, capturing immediately", "id", req.id, "action", action)
		r.fetchAndDeliver(req)
	}
}

// poll evaluates the predicate and reschedules itself until it returns true.
// Evaluation errors count as false.
func (r *Renderer) poll(req *request, v Validate) {
	req.polls++
	go func() {
		val, err := r.engine.Evaluate(r.ctx, v.Script)
		r.loop.post(func() {
			if !r.current(req) {
				return
			}
			if err == nil && isTrue(val) {
				r.log.Debug("render: predicate satisfied", "id", req.id, "polls", req.polls)
				r.fetchAndDeliver(req)
				return
			}
			if err != nil {
				r.log.Debug("render: predicate evaluation failed", "id", req.id, "poll", req.polls, "error", err)
			}
			if limit := r.cfg.MaxValidatePolls; limit > 0 && req.polls >= limit {
				req.err = ErrValidateExhausted
				r.deliver(req, nil)
				return
			}
			r.loop.after(r.cfg.ValidateInterval, func() {
				if r.current(req) {
					r.poll(req, v)
				}
			})
		})
	}()
}

// fetchAndDeliver serializes the document and delivers it.
func (r *Renderer) fetchAndDeliver(req *request) {
	req.phase = phaseFetching
	go func() {
		val, err := r.engine.Evaluate(r.ctx, serializeScript)
		r.loop.post(func() {
			if !r.current(req) {
				return
			}
			if err != nil {
				if req.err == nil {
					req.err = &ScriptError{Script: serializeScript, Err: err}
				}
				r.deliver(req, nil)
				return
			}
			r.deliver(req, []byte(val.Str()))
		})
	}()
}

func isTrue(v gson.JSON) bool {
	b, ok := v.Val().(bool)
	return ok && b
}
