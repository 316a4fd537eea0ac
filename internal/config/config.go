// Package config provides configuration management for the crawler.
// It defines configuration structures and default values for crawling parameters.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/masahif/find404/internal/logging"
)

// Report formats
const (
	FormatJSONL   = "jsonl"
	FormatConsole = "console"
)

// UnlimitedDepth disables the max depth check
const UnlimitedDepth = -1

// CrawlConfig holds crawler configuration
type CrawlConfig struct {
	// Basic crawling parameters
	RootURL        string        `mapstructure:"root_url" yaml:"root_url"`               // Starting URL for crawling
	MaxSizeBytes   int64         `mapstructure:"max_size" yaml:"max_size"`               // Maximum page size in bytes (0=unset)
	Workers        int           `mapstructure:"workers" yaml:"workers"`                 // Number of concurrent workers
	MaxDepth       int           `mapstructure:"max_depth" yaml:"max_depth"`             // Maximum crawl depth (-1=unlimited)
	Verbose        bool          `mapstructure:"verbose" yaml:"verbose"`                 // Enable debug logging
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"` // HTTP request timeout
	RequestDelay   time.Duration `mapstructure:"request_delay" yaml:"request_delay"`     // Delay between requests per host (0=disabled)
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`           // HTTP User-Agent header
	StatsInterval  time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"`   // Progress log interval (0=disabled)

	// Output
	OutputPath string `mapstructure:"output" yaml:"output"` // Report path ("" = result_<domain>.jsonl, "-" = stdout)
	Format     string `mapstructure:"format" yaml:"format"` // Report format: jsonl or console

	// Optional SQLite archive of crawl runs
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// Log file with rotation, in addition to stderr
	LogFile   string `mapstructure:"log_file" yaml:"log_file"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"` // text or json
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		Workers:        10,
		MaxDepth:       UnlimitedDepth,
		RequestTimeout: 10 * time.Second,
		UserAgent:      "find_404/1.0",
		StatsInterval:  10 * time.Second,
		Format:         FormatJSONL,
		LogFormat:      logging.FormatText,
	}
}

// NormalizeRootURL prefixes a bare host with http:// the way users type it on the command line.
func (c *CrawlConfig) NormalizeRootURL() {
	c.RootURL = strings.TrimSpace(c.RootURL)
	if c.RootURL == "" {
		return
	}
	if !strings.HasPrefix(c.RootURL, "http://") && !strings.HasPrefix(c.RootURL, "https://") {
		c.RootURL = "http://" + c.RootURL
	}
}

// Validate checks if the configuration is valid
func (c *CrawlConfig) Validate() error {
	if c.RootURL == "" {
		return ErrNoRootURL
	}

	u, err := url.Parse(c.RootURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRootURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidRootURL
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.MaxDepth < UnlimitedDepth {
		return ErrInvalidMaxDepth
	}

	if c.MaxSizeBytes < 0 {
		return ErrInvalidMaxSize
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.RequestDelay < 0 {
		return ErrInvalidDelay
	}

	switch c.Format {
	case FormatJSONL, FormatConsole:
	default:
		return ErrInvalidFormat
	}

	switch c.LogFormat {
	case logging.FormatText, logging.FormatJSON:
	default:
		return ErrInvalidLogFormat
	}

	return nil
}

// RootHost returns the host part of the root URL, or "" if it cannot be parsed
func (c *CrawlConfig) RootHost() string {
	u, err := url.Parse(c.RootURL)
	if err != nil {
		return ""
	}
	return u.Host
}
