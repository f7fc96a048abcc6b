package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/pageready/models"
)

// apiClient talks to a running pageready server.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 130 * time.Second},
	}
}

// post sends payload to path and decodes the JSON reply into out. Error
// statuses still decode, since the server reports failures in the body.
func (a *apiClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", a.apiKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}

func errorText(fallback string, detail *models.ErrorDetail) string {
	if detail == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", detail.Code, detail.Message)
}

func handleRenderPage(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		includeMedia := request.GetBool("include_media", true)
		req := models.RenderRequest{
			URL:          url,
			IncludeMedia: &includeMedia,
			OutputFormat: request.GetString("output_format", "markdown"),
			CSSSelector:  request.GetString("css_selector", ""),
			Timeout:      int(request.GetFloat("timeout", 0)),
		}
		switch script, wait := request.GetString("validate_script", ""), request.GetFloat("wait_seconds", 0); {
		case script != "" && wait > 0:
			return mcp.NewToolResultError("wait_seconds and validate_script are mutually exclusive"), nil
		case script != "":
			req.PostAction = &models.PostActionSpec{Kind: models.PostActionValidate, Script: script}
		case wait > 0:
			req.PostAction = &models.PostActionSpec{Kind: models.PostActionWait, Seconds: wait}
		}

		var resp models.RenderResponse
		if err := api.post(ctx, "/api/v1/render", req, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errorText("render failed", resp.Error)), nil
		}

		var b strings.Builder
		if resp.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", resp.Title)
		}
		if resp.Response != nil {
			fmt.Fprintf(&b, "URL: %s\nStatus: %d\n", resp.Response.URL, resp.Response.StatusCode)
		}
		b.WriteString("\n")
		b.WriteString(resp.Content)
		return mcp.NewToolResultText(b.String()), nil
	}
}

// evaluateResponse mirrors models.EvaluateResponse with a raw value.
type evaluateResponse struct {
	Success bool                   `json:"success"`
	Value   json.RawMessage        `json:"value"`
	Page    *models.RenderResponse `json:"page"`
	Error   *models.ErrorDetail    `json:"error"`
}

func handleEvaluateScript(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		script, err := request.RequireString("script")
		if err != nil {
			return mcp.NewToolResultError("script is required"), nil
		}

		req := models.EvaluateRequest{
			Script:    script,
			URL:       request.GetString("url", ""),
			Navigates: request.GetBool("navigates", false),
			Timeout:   int(request.GetFloat("timeout", 0)),
		}

		var resp evaluateResponse
		if err := api.post(ctx, "/api/v1/evaluate", req, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errorText("evaluation failed", resp.Error)), nil
		}

		var value bytes.Buffer
		if err := json.Indent(&value, resp.Value, "", "  "); err != nil {
			value.Reset()
			value.Write(resp.Value)
		}

		result := "Value:\n" + value.String()
		if resp.Page != nil && resp.Page.Response != nil {
			result += fmt.Sprintf("\n\nNavigated to: %s (HTTP %d)", resp.Page.Response.URL, resp.Page.Response.StatusCode)
		}
		return mcp.NewToolResultText(result), nil
	}
}
