package cmd

import (
	"errors"
	"fmt"
)

// Process exit codes
const (
	ExitOK      = 0
	ExitFailure = 1 // broken or oversized pages, or an interrupted crawl
	ExitFatal   = 2 // invalid configuration or unreachable root URL
)

// errCrawlFailed is reported when the crawl found problems; the details are already printed
var errCrawlFailed = errors.New("crawl found broken or oversized pages")

// errCrawlInterrupted is reported when the crawl was cancelled before it finished
var errCrawlInterrupted = errors.New("crawl interrupted")

// errNoDatabase is returned when an archive command is used without --database
var errNoDatabase = errors.New("--database is required to read archived runs")

// ExitError carries the process exit code for an error back to main
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Silent reports whether the error's details were already shown to the user
func (e *ExitError) Silent() bool {
	return errors.Is(e.Err, errCrawlFailed)
}

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFatal
}
