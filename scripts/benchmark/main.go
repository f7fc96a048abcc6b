package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/pageready/models"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "pageready API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of runs per URL and mode for averaging")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Test URLs covering media-light and media-heavy pages.
var testURLs = []struct {
	Label string
	URL   string
}{
	{"Static", "https://example.com"},
	{"Docs", "https://go.dev/doc/effective_go"},
	{"News", "https://www.bbc.com/news"},
	{"Complex", "https://github.com/go-rod/rod"},
}

// modes compares waiting for media against stopping once the document is parsed.
var modes = []struct {
	Label        string
	IncludeMedia bool
}{
	{"full", true},
	{"no-media", false},
}

type runResult struct {
	Run           int    `json:"run"`
	TotalMs       int64  `json:"total_ms"`
	RenderMs      int64  `json:"render_ms"`
	ContentLength int    `json:"content_length"`
	StatusCode    int    `json:"status_code"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

type modeResult struct {
	Mode        string      `json:"mode"`
	Runs        []runResult `json:"runs"`
	AvgRenderMs float64     `json:"avg_render_ms,omitempty"`
}

type urlResult struct {
	URL   string       `json:"url"`
	Label string       `json:"label"`
	Modes []modeResult `json:"modes"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== pageready benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/mode: %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	client := &http.Client{Timeout: 90 * time.Second}
	for _, t := range testURLs {
		fmt.Printf("Benchmarking [%s] %s ...\n", t.Label, t.URL)
		ur := urlResult{URL: t.URL, Label: t.Label}

		for _, m := range modes {
			mr := modeResult{Mode: m.Label}
			for i := 1; i <= *runs; i++ {
				fmt.Printf("  %-8s run %d/%d ... ", m.Label, i, *runs)
				rr := benchmarkURL(client, t.URL, m.IncludeMedia, i)
				if rr.Success {
					fmt.Printf("OK  %dms\n", rr.RenderMs)
				} else {
					fmt.Printf("FAILED: %s\n", rr.Error)
				}
				mr.Runs = append(mr.Runs, rr)
			}
			mr.AvgRenderMs = averageRenderMs(mr.Runs)
			ur.Modes = append(ur.Modes, mr)
		}

		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkURL(client *http.Client, url string, includeMedia bool, run int) runResult {
	rr := runResult{Run: run}

	bodyBytes, err := json.Marshal(models.RenderRequest{
		URL:          url,
		IncludeMedia: &includeMedia,
		OutputFormat: "html",
		Timeout:      60,
	})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/render", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var rd models.RenderResponse
	if err := json.NewDecoder(resp.Body).Decode(&rd); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = rd.Success
	rr.TotalMs = rd.Timing.TotalMs
	rr.RenderMs = rd.Timing.RenderMs
	rr.ContentLength = len(rd.Content)
	if rd.Response != nil {
		rr.StatusCode = rd.Response.StatusCode
	}
	if rd.Error != nil {
		rr.Error = rd.Error.Message
	}
	return rr
}

// averageRenderMs averages successful runs; 0 when none succeeded.
func averageRenderMs(runs []runResult) float64 {
	var sum float64
	var n int
	for _, r := range runs {
		if r.Success {
			sum += float64(r.RenderMs)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 72))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tFull\tNo media\tSaved\n")
	fmt.Fprintf(w, "───\t────\t────────\t─────\n")

	for _, r := range results {
		full, fast := r.Modes[0].AvgRenderMs, r.Modes[1].AvgRenderMs
		if full == 0 || fast == 0 {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\n", truncateURL(r.URL, 40))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%.1f%%\n",
			truncateURL(r.URL, 40),
			int64(full),
			int64(fast),
			(full-fast)/full*100,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 72))
}

func truncateURL(u string, limit int) string {
	if len(u) <= limit {
		return u
	}
	return u[:limit-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
