package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Renderer  RendererConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance and its page pool.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the number of renderer slots (one tab each).
	MaxPages int // default: 10

	// DefaultProxy is the proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth injects anti-bot-detection evasions into every page.
	Stealth bool // default: false

	// BlockedResourceTypes lists resource types the page never loads.
	// Interception uses the Fetch domain, so leave empty unless needed.
	// Allowed: Image, Stylesheet, Font, Media, Script.
	BlockedResourceTypes []string

	// BlockAds blocks requests to well-known ad and tracking domains.
	BlockAds bool // default: false
}

// RendererConfig controls load-completion behaviour.
type RendererConfig struct {
	// DefaultTimeout is the per-request deadline.
	DefaultTimeout time.Duration // default: 30s

	// MaxTimeout is the maximum deadline a client may ask for.
	MaxTimeout time.Duration // default: 120s

	// ValidateInterval is the pause between two validate polls.
	ValidateInterval time.Duration // default: 500ms

	// MaxValidatePolls caps validate polling; 0 polls until the deadline.
	MaxValidatePolls int // default: 0
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: true
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CacheConfig controls the render response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 1000

	// TTL is how long an entry may live regardless of max_age.
	TTL time.Duration // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PAGEREADY_HOST", "0.0.0.0"),
			Port: envIntOr("PAGEREADY_PORT", 8080),
			Mode: envOr("PAGEREADY_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:             envBoolOr("PAGEREADY_HEADLESS", true),
			MaxPages:             envIntOr("PAGEREADY_MAX_PAGES", 10),
			DefaultProxy:         os.Getenv("PAGEREADY_PROXY"),
			NoSandbox:            envBoolOr("PAGEREADY_NO_SANDBOX", false),
			BrowserBin:           os.Getenv("PAGEREADY_BROWSER_BIN"),
			Stealth:              envBoolOr("PAGEREADY_STEALTH", false),
			BlockedResourceTypes: envSliceOr("PAGEREADY_BLOCKED_RESOURCES", nil),
			BlockAds:             envBoolOr("PAGEREADY_BLOCK_ADS", false),
		},
		Renderer: RendererConfig{
			DefaultTimeout:   envDurationOr("PAGEREADY_DEFAULT_TIMEOUT", 30*time.Second),
			MaxTimeout:       envDurationOr("PAGEREADY_MAX_TIMEOUT", 120*time.Second),
			ValidateInterval: envDurationOr("PAGEREADY_VALIDATE_INTERVAL", 500*time.Millisecond),
			MaxValidatePolls: envIntOr("PAGEREADY_MAX_VALIDATE_POLLS", 0),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PAGEREADY_AUTH_ENABLED", true),
			APIKeys: envSliceOr("PAGEREADY_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PAGEREADY_RATE_RPS", 5.0),
			Burst:             envIntOr("PAGEREADY_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("PAGEREADY_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("PAGEREADY_CACHE_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("PAGEREADY_LOG_LEVEL", "info"),
			Format: envOr("PAGEREADY_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
