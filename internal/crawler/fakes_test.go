package crawler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/masahif/find404/internal/parser"
)

func init() {
	// Disable slog output during testing
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	slog.SetDefault(logger)
}

// fakePage is the canned response for one URL
type fakePage struct {
	status      int
	contentType string
	body        string
	finalURL    string        // defaults to the requested URL
	err         error         // returned instead of a response
	delay       time.Duration // simulated latency
}

// fakeFetcher serves canned pages and counts fetches per URL
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]fakePage
	fetches map[string]int
}

func newFakeFetcher(pages map[string]fakePage) *fakeFetcher {
	return &fakeFetcher{
		pages:   pages,
		fetches: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*HTTPResponse, error) {
	f.mu.Lock()
	f.fetches[url]++
	page, ok := f.pages[url]
	f.mu.Unlock()

	if page.delay > 0 {
		select {
		case <-time.After(page.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !ok {
		page = fakePage{status: 404, contentType: "text/plain", body: "not found"}
	}
	if page.err != nil {
		return nil, page.err
	}

	finalURL := page.finalURL
	if finalURL == "" {
		finalURL = url
	}
	return &HTTPResponse{
		StatusCode:  page.status,
		Body:        []byte(page.body),
		Size:        int64(len(page.body)),
		ContentType: page.contentType,
		FinalURL:    finalURL,
		Redirected:  finalURL != url,
	}, nil
}

func (f *fakeFetcher) fetchCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[url]
}

func (f *fakeFetcher) totalFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.fetches {
		total += n
	}
	return total
}

func htmlPage(body string) fakePage {
	return fakePage{status: 200, contentType: "text/html; charset=utf-8", body: body}
}

func newExtractor() LinkExtractor {
	return parser.NewLinkExtractor()
}

// memoryStore is a ResultStore that keeps everything in memory
type memoryStore struct {
	mu       sync.Mutex
	runs     map[string]*RunInfo
	results  map[string][]CrawlResult
	finished []RunInfo
	beginErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		runs:    make(map[string]*RunInfo),
		results: make(map[string][]CrawlResult),
	}
}

func (m *memoryStore) BeginRun(run *RunInfo) error {
	if m.beginErr != nil {
		return m.beginErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *run
	m.runs[run.ID] = &copied
	return nil
}

func (m *memoryStore) SaveResult(runID string, result *CrawlResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[runID] = append(m.results[runID], *result)
	return nil
}

func (m *memoryStore) FinishRun(run *RunInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, *run)
	return nil
}
