// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	// DefaultMaxPages is the page ceiling applied to downloaded documents.
	DefaultMaxPages = 30

	// DefaultMaxBytes is the byte ceiling applied to downloads (100 MiB).
	DefaultMaxBytes int64 = 100 << 20
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries bounds retries on HTTP 429 responses (0 uses the default).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// Validate checks the HTTP settings.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.UserAgent, validation.Required),
		validation.Field(&c.MaxRetries, validation.Min(0)),
	)
}

// SearchConfig holds settings for the source adapters.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// NCBIAPIKey raises the E-utilities rate limit when set.
	NCBIAPIKey string `json:"ncbi_api_key,omitempty" yaml:"ncbi_api_key,omitempty" mapstructure:"ncbi_api_key"`

	// NCBIEmail is the contact address E-utilities asks clients to send.
	NCBIEmail string `json:"ncbi_email,omitempty" yaml:"ncbi_email,omitempty" mapstructure:"ncbi_email"`

	// NCBITool is the tool name sent with E-utilities requests.
	NCBITool string `json:"ncbi_tool" yaml:"ncbi_tool" mapstructure:"ncbi_tool"`
}

// Validate checks the search settings.
func (c *SearchConfig) Validate() error {
	return c.HTTPConfig.Validate()
}

// AcquisitionConfig holds settings for resolution, download, and validation.
type AcquisitionConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// PapersDir is the base directory downloaded documents are written to.
	PapersDir string `json:"papers_dir" yaml:"papers_dir" mapstructure:"papers_dir"`

	// MaxPages is the page ceiling; longer documents are deleted and skipped.
	// Zero or negative disables the check.
	MaxPages int `json:"max_pages" yaml:"max_pages" mapstructure:"max_pages"`

	// MaxBytes is the download size ceiling.
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes" mapstructure:"max_bytes"`

	// DownloadDelay is the politeness delay between document fetches.
	DownloadDelay time.Duration `json:"download_delay" yaml:"download_delay" mapstructure:"download_delay"`

	// QueryDelay is the politeness delay between adapter calls and queries.
	QueryDelay time.Duration `json:"query_delay" yaml:"query_delay" mapstructure:"query_delay"`

	// RetrySkipped makes pending-download runs retry papers previously
	// skipped by the page policy.
	RetrySkipped bool `json:"retry_skipped" yaml:"retry_skipped" mapstructure:"retry_skipped"`
}

// Validate checks the acquisition settings.
func (c *AcquisitionConfig) Validate() error {
	if err := c.HTTPConfig.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.PapersDir, validation.Required),
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.DownloadDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.QueryDelay, validation.Min(time.Duration(0))),
	)
}

// StoreConfig holds settings for the paper store.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// Validate checks the store settings.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// APIConfig holds settings for the HTTP API.
type APIConfig struct {
	// Addr is the listen address (e.g. ":8001").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

// Validate checks the API settings.
func (c *APIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
	)
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is text or json.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Validate checks the log settings.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.In("text", "json")),
	)
}

// SlogLevel maps Level onto a slog.Level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config groups all stage configurations.
type Config struct {
	Search      SearchConfig      `json:"search" yaml:"search" mapstructure:"search"`
	Acquisition AcquisitionConfig `json:"acquisition" yaml:"acquisition" mapstructure:"acquisition"`
	Store       StoreConfig       `json:"store" yaml:"store" mapstructure:"store"`
	API         APIConfig         `json:"api" yaml:"api" mapstructure:"api"`
	Log         LogConfig         `json:"log" yaml:"log" mapstructure:"log"`
}

// Validate checks every section.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.Search, &c.Acquisition, &c.Store, &c.API, &c.Log} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DefaultConfig returns a Config with the collector's default values.
func DefaultConfig() Config {
	httpCfg := HTTPConfig{
		Timeout:   30 * time.Second,
		UserAgent: "paper-collector/0.1 (+https://github.com/pdiddy/paper-collector)",
	}
	return Config{
		Search: SearchConfig{
			HTTPConfig: httpCfg,
			NCBITool:   "paper-collector",
		},
		Acquisition: AcquisitionConfig{
			HTTPConfig:    httpCfg,
			PapersDir:     "papers",
			MaxPages:      DefaultMaxPages,
			MaxBytes:      DefaultMaxBytes,
			DownloadDelay: 1500 * time.Millisecond,
			QueryDelay:    3 * time.Second,
		},
		Store: StoreConfig{Path: "papers.db"},
		API:   APIConfig{Addr: ":8001"},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}
