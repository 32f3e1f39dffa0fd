package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent to polite APIs
	// (e.g. "paper-harvest/0.1"). The fetch layer rotates its own agents.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// MetadataSource selects the bibliographic API backend.
type MetadataSource string

const (
	SourceCrossRef MetadataSource = "crossref"
	SourceOpenAlex MetadataSource = "openalex"
)

// MetadataConfig holds settings for the metadata acquisition stage.
type MetadataConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Source selects the API backend (default crossref).
	Source MetadataSource `json:"source" yaml:"source" mapstructure:"source"`

	// Email is sent as the mailto parameter for polite pool access.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`

	// CacheDir holds one JSON response per (journal, year).
	CacheDir string `json:"cache_dir" yaml:"cache_dir" mapstructure:"cache_dir"`

	// Workers bounds parallel (journal, year) fetches (default 3).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// MaxAttempts caps fetch attempts per (journal, year) (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BackoffBase is the first retry delay; later delays double (default 4s).
	BackoffBase time.Duration `json:"backoff_base" yaml:"backoff_base" mapstructure:"backoff_base"`

	// Refresh re-fetches pairs that already have records in the store.
	Refresh bool `json:"refresh" yaml:"refresh" mapstructure:"refresh"`
}

// Transport selects how the fetch layer talks to the secondary source.
type Transport string

const (
	TransportBrowser Transport = "browser"
	TransportHTTP    Transport = "http"
)

// FetchConfig holds settings for the resilient fetch layer.
type FetchConfig struct {
	// Transport is browser (default) or http.
	Transport Transport `json:"transport" yaml:"transport" mapstructure:"transport"`

	// BaseURL is the secondary source's landing page.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// SearchURL is the search endpoint used by the HTTP transport; the
	// query is appended as the "term" parameter.
	SearchURL string `json:"search_url" yaml:"search_url" mapstructure:"search_url"`

	// CrawlDelay is the pause after each record (default 5s).
	CrawlDelay time.Duration `json:"crawl_delay" yaml:"crawl_delay" mapstructure:"crawl_delay"`

	// MaxRetries caps retries of recoverable failures (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// BackoffFactor multiplies the crawl delay per retry (default 2).
	BackoffFactor float64 `json:"backoff_factor" yaml:"backoff_factor" mapstructure:"backoff_factor"`

	// PageTimeout bounds a single navigation (default 30s).
	PageTimeout time.Duration `json:"page_timeout" yaml:"page_timeout" mapstructure:"page_timeout"`

	// ChallengeTimeout bounds the wait for a bot-verification banner to clear (default 30s).
	ChallengeTimeout time.Duration `json:"challenge_timeout" yaml:"challenge_timeout" mapstructure:"challenge_timeout"`

	// Headless runs the browser without a window.
	Headless bool `json:"headless" yaml:"headless" mapstructure:"headless"`

	// SavePages stores raw fetched pages under the data directory.
	SavePages bool `json:"save_pages" yaml:"save_pages" mapstructure:"save_pages"`

	// RespectRobots raises the crawl delay to the source's robots.txt Crawl-delay.
	RespectRobots bool `json:"respect_robots" yaml:"respect_robots" mapstructure:"respect_robots"`
}

// MatchConfig holds settings for the identity resolution engine.
type MatchConfig struct {
	// SimilarityThreshold is the minimum combined score to accept (default 85).
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold" mapstructure:"similarity_threshold"`

	// LengthWeight is the weight of word-count similarity (default 0.3).
	LengthWeight float64 `json:"length_weight" yaml:"length_weight" mapstructure:"length_weight"`

	// MaxCandidates caps how many search results are scored (default 8).
	MaxCandidates int `json:"max_candidates" yaml:"max_candidates" mapstructure:"max_candidates"`
}

// StorageConfig locates the database and stored files.
type StorageConfig struct {
	// DataDir is the root for the database, caches, pages, and artifacts.
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// DBPath overrides the database location (default DataDir/harvest.db).
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty" mapstructure:"db_path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// File receives JSON logs in addition to the stderr text handler.
	File string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`

	// Level is debug, info, warn, or error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`
}

// Config groups all component configurations. It is built once by the
// CLI and passed down; no component reads global settings.
type Config struct {
	Storage  StorageConfig  `json:"storage" yaml:"storage" mapstructure:"storage"`
	Metadata MetadataConfig `json:"metadata" yaml:"metadata" mapstructure:"metadata"`
	Fetch    FetchConfig    `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	Match    MatchConfig    `json:"match" yaml:"match" mapstructure:"match"`
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns the configuration used when no file or flag
// overrides a value.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{DataDir: "data"},
		Metadata: MetadataConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   60 * time.Second,
				UserAgent: "paper-harvest/0.1",
			},
			Source:      SourceCrossRef,
			Workers:     3,
			MaxAttempts: 3,
			BackoffBase: 4 * time.Second,
		},
		Fetch: FetchConfig{
			Transport:        TransportBrowser,
			BaseURL:          "https://www.ssrn.com/index.cfm/en/",
			SearchURL:        "https://papers.ssrn.com/sol3/results.cfm",
			CrawlDelay:       5 * time.Second,
			MaxRetries:       2,
			BackoffFactor:    2,
			PageTimeout:      30 * time.Second,
			ChallengeTimeout: 30 * time.Second,
			Headless:         true,
			SavePages:        true,
		},
		Match: MatchConfig{
			SimilarityThreshold: 85,
			LengthWeight:        0.3,
			MaxCandidates:       8,
		},
		Log: LogConfig{Level: "info"},
	}
}
