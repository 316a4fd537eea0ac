package crawler

import "time"

// WorkItem represents an admitted URL waiting in the frontier
type WorkItem struct {
	URL      string // Normalized absolute URL
	Depth    int    // Link distance from the root URL
	Referrer string // Page that first linked here ("" for the root)
	InDomain bool   // Fixed at admission time
}

// Fetch error types recorded in CrawlResult.ErrorType
const (
	ErrorTypeTimeout    = "timeout"
	ErrorTypeDNS        = "dns_error"
	ErrorTypeConnection = "connection_failed"
	ErrorTypeNetwork    = "network_error"
)

// CrawlResult is the outcome of visiting one admitted URL
type CrawlResult struct {
	URL             string        // Admitted URL the result is recorded under
	StatusCode      int           // Final HTTP status code (0 when the fetch failed)
	ErrorType       string        // Non-empty when the fetch failed (timeout, dns_error, ...)
	ErrorMessage    string        // Detailed fetch error message
	SizeBytes       int64         // Response body size in bytes
	Referrer        string        // First page that linked here ("" for the root)
	Depth           int           // Link distance from the root URL
	InDomain        bool          // Whether the URL is inside the crawl scope
	FinalURL        string        // URL after following redirects
	OffsiteRedirect bool          // Redirects ended outside the crawl scope
	ContentType     string        // HTTP Content-Type header
	Broken          bool          // 4xx/5xx status or fetch failure
	Oversized       bool          // Body larger than the configured maximum
	TTFB            time.Duration // Time to First Byte
	DownloadTime    time.Duration // Total download time
	CrawledAt       time.Time     // Timestamp when crawled (UTC)
}

// FetchFailed reports whether no HTTP response was received
func (r *CrawlResult) FetchFailed() bool {
	return r.ErrorType != ""
}

// IsBrokenStatus reports whether an HTTP status code denotes a broken link
func IsBrokenStatus(code int) bool {
	return code >= 400 && code < 600
}

// isFollowableStatus reports whether a page with this status may have its links extracted
func isFollowableStatus(code int) bool {
	return code >= 200 && code < 400
}

// PageResult represents the result of processing a single work item
type PageResult struct {
	Result   CrawlResult
	Links    []string // Absolute links discovered on the page, not yet normalized
	FetchErr error    // Underlying fetch error, if any
}

// CrawlStats represents crawling statistics
type CrawlStats struct {
	Admitted  int
	Recorded  int
	Broken    int
	Oversized int
	Pending   int
	Active    int
	StartTime time.Time
	Duration  time.Duration
}

// Report is everything a finished (or interrupted) crawl hands to the reporting layer
type Report struct {
	RunID       string
	RootURL     string
	Results     []CrawlResult
	Interrupted bool
	Healthy     bool // no broken or oversized results, as decided by the Collector
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Success reports whether the crawl found no broken or oversized pages and ran to completion
func (r *Report) Success() bool {
	return r.Healthy && !r.Interrupted
}

// ReportFromRun rebuilds the report of an archived run from its stored results
func ReportFromRun(run *RunInfo, results []CrawlResult) *Report {
	collector := NewCollector(nil, run.ID)
	for _, r := range results {
		collector.Record(r)
	}
	return &Report{
		RunID:       run.ID,
		RootURL:     run.RootURL,
		Results:     collector.Results(),
		Interrupted: run.Interrupted,
		Healthy:     collector.IsSuccess(),
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
}
