package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves a single URL, following redirects
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*HTTPResponse, error)
}

// LinkExtractor finds the absolute URLs an HTML document links to
type LinkExtractor interface {
	ExtractLinks(htmlContent []byte, baseURL string) ([]string, error)
}

// PageProcessor handles individual work items
type PageProcessor interface {
	Process(ctx context.Context, item *WorkItem) *PageResult
}

// ResultStore persists crawl runs and their results
type ResultStore interface {
	BeginRun(run *RunInfo) error
	SaveResult(runID string, result *CrawlResult) error
	FinishRun(run *RunInfo) error
}

// RunInfo describes one crawl run for the result store
type RunInfo struct {
	ID          string
	RootURL     string
	Workers     int
	MaxDepth    int
	MaxSize     int64
	StartedAt   time.Time
	FinishedAt  time.Time
	Interrupted bool
	Results     int
	Broken      int
	Oversized   int
}
