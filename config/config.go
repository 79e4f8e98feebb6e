package config

import (
	"os"
	"strconv"
	"time"
)

// Settings holds all runtime tuning read from the environment. It is
// immutable after Load and shared by every run.
type Settings struct {
	// ConfigDir holds one dotenv file per catalog to scrape.
	ConfigDir string // default: "env"

	Browser  BrowserConfig
	Navigate NavigateConfig
	Submit   SubmitConfig
	Log      LogConfig
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// Bin overrides the Chromium binary path.
	Bin string

	// Proxy is an optional proxy URL for all browser traffic.
	Proxy string
}

// NavigateConfig controls page navigation and content settling.
type NavigateConfig struct {
	// PageTimeout is the deadline for loading one listing page.
	PageTimeout time.Duration // default: 45s

	// StabilizeTimeout bounds the wait for dynamic content to settle.
	// On expiry the current DOM is used as best-effort content.
	StabilizeTimeout time.Duration // default: 10s

	// MaxPages guards against pagination loops that never report a
	// missing next-page control.
	MaxPages int // default: 50

	// MaxScrollAttempts caps the lazy-load scroll loop per page.
	MaxScrollAttempts int // default: 40

	// MaxListingsPerPage stops the scroll loop once this many listing
	// cards are loaded.
	MaxListingsPerPage int // default: 100

	// SortNewest clicks the newest-first sort control before scraping.
	SortNewest bool // default: false
}

// SubmitConfig controls the submission dispatcher.
type SubmitConfig struct {
	// Retries is the number of extra attempts after a transient failure.
	Retries int // default: 2

	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration // default: 500ms

	// Timeout is the deadline for one submission attempt.
	Timeout time.Duration // default: 30s

	// Workers bounds concurrent submissions. 1 disables concurrency.
	Workers int // default: 4

	// RatePerSecond is the sustained politeness rate across all sinks.
	RatePerSecond float64 // default: 2

	// SheetBatchSize buffers this many rows before appending to the
	// sheet. 1 submits every record immediately.
	SheetBatchSize int // default: 1
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads runtime settings from environment variables with sane defaults.
func Load() *Settings {
	return &Settings{
		ConfigDir: envOr("HOMESIFT_CONFIG_DIR", "env"),
		Browser: BrowserConfig{
			Headless:  envBoolOr("HOMESIFT_HEADLESS", true),
			NoSandbox: envBoolOr("HOMESIFT_NO_SANDBOX", false),
			Bin:       os.Getenv("HOMESIFT_BROWSER_BIN"),
			Proxy:     os.Getenv("HOMESIFT_PROXY"),
		},
		Navigate: NavigateConfig{
			PageTimeout:        envDurationOr("HOMESIFT_PAGE_TIMEOUT", 45*time.Second),
			StabilizeTimeout:   envDurationOr("HOMESIFT_STABILIZE_TIMEOUT", 10*time.Second),
			MaxPages:           envIntOr("HOMESIFT_MAX_PAGES", 50),
			MaxScrollAttempts:  envIntOr("HOMESIFT_MAX_SCROLL_ATTEMPTS", 40),
			MaxListingsPerPage: envIntOr("HOMESIFT_MAX_LISTINGS_PER_PAGE", 100),
			SortNewest:         envBoolOr("HOMESIFT_SORT_NEWEST", false),
		},
		Submit: SubmitConfig{
			Retries:        envIntOr("HOMESIFT_SUBMIT_RETRIES", 2),
			Backoff:        envDurationOr("HOMESIFT_SUBMIT_BACKOFF", 500*time.Millisecond),
			Timeout:        envDurationOr("HOMESIFT_SUBMIT_TIMEOUT", 30*time.Second),
			Workers:        envIntOr("HOMESIFT_SUBMIT_WORKERS", 4),
			RatePerSecond:  envFloatOr("HOMESIFT_SUBMIT_RPS", 2.0),
			SheetBatchSize: envIntOr("HOMESIFT_SHEET_BATCH", 1),
		},
		Log: LogConfig{
			Level:  envOr("HOMESIFT_LOG_LEVEL", "info"),
			Format: envOr("HOMESIFT_LOG_FORMAT", "text"),
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
