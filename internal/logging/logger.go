// Package logging configures the process-wide slog logger.
// Diagnostics go to stderr so that stdout stays free for the crawl report.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Log record formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config represents the logging configuration
type Config struct {
	Level      slog.Level
	FilePath   string
	MaxSize    int64 // MB
	MaxBackups int
	Console    bool
	JSON       bool // JSON records instead of text
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:      slog.LevelInfo,
		FilePath:   "",
		MaxSize:    100, // 100MB
		MaxBackups: 5,
		Console:    true,
	}
}

// ForVerbosity returns the default configuration with the level raised to debug when verbose
// is set and JSON records when format is FormatJSON.
func ForVerbosity(verbose bool, format, filePath string) Config {
	cfg := *DefaultConfig()
	if verbose {
		cfg.Level = slog.LevelDebug
	}
	cfg.JSON = format == FormatJSON
	cfg.FilePath = filePath
	return cfg
}

// NewLogger creates a new logger with the given configuration. The returned close function
// releases the log file, if any, and is always non-nil.
func NewLogger(config Config) (*slog.Logger, func() error, error) {
	var writers []io.Writer
	closeFn := func() error { return nil }

	if config.Console {
		writers = append(writers, os.Stderr)
	}

	// File output with rotation
	if config.FilePath != "" {
		dir := filepath.Dir(config.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, err
		}

		fileWriter, err := NewRotatingFileWriter(
			config.FilePath,
			config.MaxSize*1024*1024, // MB to bytes
			config.MaxBackups,
		)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fileWriter)
		closeFn = fileWriter.Close
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: config.Level}
	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler), closeFn, nil
}

// SetDefault creates and sets a default logger with the given configuration. Callers close
// the log file with the returned function once logging is done.
func SetDefault(config Config) (func() error, error) {
	logger, closeFn, err := NewLogger(config)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closeFn, nil
}
