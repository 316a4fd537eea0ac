package config

import "errors"

var (
	// ErrNoRootURL is returned when no root URL is provided
	ErrNoRootURL = errors.New("no root URL provided")
	// ErrInvalidRootURL is returned when the root URL is not an absolute http(s) URL
	ErrInvalidRootURL = errors.New("root URL must be an absolute http or https URL")
	// ErrInvalidWorkers is returned when workers is not greater than 0
	ErrInvalidWorkers = errors.New("workers must be greater than 0")
	// ErrInvalidMaxDepth is returned when max_depth is below -1
	ErrInvalidMaxDepth = errors.New("max_depth must be -1 (unlimited) or a non-negative integer")
	// ErrInvalidMaxSize is returned when max_size is negative
	ErrInvalidMaxSize = errors.New("max_size cannot be negative")
	// ErrInvalidTimeout is returned when request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("request_timeout must be greater than 0")
	// ErrInvalidDelay is returned when request delay is negative
	ErrInvalidDelay = errors.New("request_delay cannot be negative")
	// ErrInvalidFormat is returned when the report format is unknown
	ErrInvalidFormat = errors.New("format must be 'jsonl' or 'console'")
	// ErrInvalidLogFormat is returned when the log format is unknown
	ErrInvalidLogFormat = errors.New("log_format must be 'text' or 'json'")
)
