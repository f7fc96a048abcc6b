package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("PAGEREADY_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PAGEREADY_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "PAGEREADY_API_KEY is required")
		os.Exit(1)
	}

	s := newServer(newAPIClient(apiURL, apiKey))
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(api *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"pageready",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	renderTool := mcp.NewTool("render_page",
		mcp.WithDescription("Load a web page in a headless browser, wait until it is fully loaded, and return its content. "+
			"Optionally wait a fixed time or until a JavaScript predicate holds before capturing."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to render"),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format: 'markdown' (default), 'html', 'text', or 'article' (main content as markdown)"),
			mcp.Enum("markdown", "html", "text", "article"),
		),
		mcp.WithBoolean("include_media",
			mcp.Description("Wait for images and media (default true). When false, capture as soon as the document is parsed."),
		),
		mcp.WithNumber("wait_seconds",
			mcp.Description("Extra seconds to wait after the page first becomes idle"),
		),
		mcp.WithString("validate_script",
			mcp.Description("JavaScript expression polled after load until it returns true"),
		),
		mcp.WithString("css_selector",
			mcp.Description("Keep only elements matching this CSS selector"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Deadline in seconds (default 30, max 120)"),
		),
	)
	s.AddTool(renderTool, handleRenderPage(api))

	evaluateTool := mcp.NewTool("evaluate_script",
		mcp.WithDescription("Evaluate JavaScript in a browser page and return its value. "+
			"Set url to load a page first, and navigates when the script causes a navigation."),
		mcp.WithString("script",
			mcp.Required(),
			mcp.Description("The JavaScript expression to evaluate"),
		),
		mcp.WithString("url",
			mcp.Description("Page to load before evaluating"),
		),
		mcp.WithBoolean("navigates",
			mcp.Description("The script triggers a navigation; the loaded page is returned too"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Deadline in seconds (default 30, max 120)"),
		),
	)
	s.AddTool(evaluateTool, handleEvaluateScript(api))

	return s
}
