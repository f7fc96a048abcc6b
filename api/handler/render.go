package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pageready/cache"
	"github.com/use-agent/pageready/cleaner"
	"github.com/use-agent/pageready/models"
	"github.com/use-agent/pageready/render"
	"github.com/use-agent/pageready/webhook"
)

// Render returns a handler for POST /api/v1/render.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup when max_age is set.
//  3. Renderer.Render → captured document + response (records render_ms)
//  4. Cleaner.Format  → requested output format   (records format_ms)
//  5. Cache store, webhook, respond.
//
// cc and wh may be nil.
func Render(rd Renderer, cl *cleaner.Cleaner, cc *cache.Cache, wh *webhook.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()
		id := requestID(c)

		// ── 1. Parse request ────────────────────────────────────────
		var req models.RenderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.RenderResponse{Success: false, Error: invalidInput(err)})
			return
		}
		req.Defaults()
		if _, err := req.Options(); err != nil {
			respondRenderError(c, err, nil, models.TimingInfo{})
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		var key string
		if cc != nil && req.MaxAge > 0 {
			key = cache.Key(&req)
			if cached, hit := cc.Get(key, req.MaxAge); hit {
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Render ───────────────────────────────────────────────
		renderStart := time.Now()
		res, err := rd.Render(c.Request.Context(), &req)
		renderMs := time.Since(renderStart).Milliseconds()

		if err != nil {
			timing := models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds(), RenderMs: renderMs}
			resp := respondRenderError(c, err, res, timing)
			notify(wh, &req, id, resp)
			return
		}

		// ── 4. Format ───────────────────────────────────────────────
		formatStart := time.Now()
		out, err := cl.Format(string(res.HTML), req.URL, req.OutputFormat, req.CSSSelector)
		formatMs := time.Since(formatStart).Milliseconds()

		if err != nil {
			timing := models.TimingInfo{
				TotalMs:  time.Since(totalStart).Milliseconds(),
				RenderMs: renderMs,
				FormatMs: formatMs,
			}
			respondRenderError(c, err, res, timing)
			return
		}

		resp := &models.RenderResponse{
			Success:  true,
			Content:  out.Content,
			Format:   req.OutputFormat,
			Title:    out.Title,
			Response: models.NewResponseInfo(res.Response),
			Timing: models.TimingInfo{
				TotalMs:  time.Since(totalStart).Milliseconds(),
				RenderMs: renderMs,
				FormatMs: formatMs,
			},
		}

		// ── 5. Cache store ──────────────────────────────────────────
		if key != "" {
			cc.Set(key, resp)
			resp.CacheStatus = "miss"
		}

		slog.Debug("render completed",
			"request_id", id,
			"url", req.URL,
			"format", req.OutputFormat,
			"render_ms", renderMs,
		)
		notify(wh, &req, id, resp)
		c.JSON(http.StatusOK, resp)
	}
}

// respondRenderError writes a structured error response. When the renderer
// delivered a result, the response it recorded is reported alongside.
func respondRenderError(c *gin.Context, err error, res *render.Result, timing models.TimingInfo) *models.RenderResponse {
	renderErr := models.Categorize(err)

	resp := &models.RenderResponse{
		Success: false,
		Error:   renderErr.ToDetail(),
		Timing:  timing,
	}
	if res != nil {
		resp.Response = models.NewResponseInfo(res.Response)
	}

	c.JSON(mapErrorToStatus(renderErr), resp)
	return resp
}

func notify(wh *webhook.Notifier, req *models.RenderRequest, id string, resp *models.RenderResponse) {
	if wh == nil || req.WebhookURL == "" {
		return
	}
	wh.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
		Type:      webhook.EventRenderCompleted,
		RequestID: id,
		Timestamp: time.Now().Unix(),
		Data:      resp,
	})
}
