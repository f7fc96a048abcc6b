package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pageready/cleaner"
	"github.com/use-agent/pageready/models"
)

// Evaluate returns a handler for POST /api/v1/evaluate.
//
// For navigating scripts the page the script navigated to is returned as
// raw HTML alongside the script's value.
func Evaluate(rd Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()
		requestID(c)

		var req models.EvaluateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.EvaluateResponse{Success: false, Error: invalidInput(err)})
			return
		}
		req.Defaults()
		if _, err := req.Options(); err != nil {
			re := models.Categorize(err)
			c.JSON(mapErrorToStatus(re), models.EvaluateResponse{Success: false, Error: re.ToDetail()})
			return
		}

		renderStart := time.Now()
		res, err := rd.Evaluate(c.Request.Context(), &req)
		timing := models.TimingInfo{
			TotalMs:  time.Since(totalStart).Milliseconds(),
			RenderMs: time.Since(renderStart).Milliseconds(),
		}

		resp := models.EvaluateResponse{Success: err == nil, Timing: timing}
		if res != nil {
			resp.Value = res.Value
			if res.Page != nil {
				page := &models.RenderResponse{
					Success:  res.Page.Err == nil,
					Response: models.NewResponseInfo(res.Page.Response),
				}
				if res.Page.HTML != nil {
					page.Content = string(res.Page.HTML)
					page.Format = cleaner.FormatHTML
					page.Title = cleaner.Title(page.Content)
				}
				resp.Page = page
			}
		}

		if err != nil {
			re := models.Categorize(err)
			resp.Error = re.ToDetail()
			c.JSON(mapErrorToStatus(re), resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
