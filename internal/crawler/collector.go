package crawler

import (
	"log/slog"
	"sync"
)

// Collector gathers one CrawlResult per visited URL from all workers
type Collector struct {
	mu        sync.Mutex
	results   []CrawlResult
	seen      map[string]struct{}
	broken    int
	oversized int

	store ResultStore // optional
	runID string
}

// NewCollector creates a collector. store may be nil; when set, every recorded result is
// also saved under runID.
func NewCollector(store ResultStore, runID string) *Collector {
	return &Collector{
		seen:  make(map[string]struct{}),
		store: store,
		runID: runID,
	}
}

// Record appends result. A second result for the same URL is refused and false is returned.
func (c *Collector) Record(result CrawlResult) bool {
	c.mu.Lock()
	if _, dup := c.seen[result.URL]; dup {
		c.mu.Unlock()
		slog.Warn("Ignoring duplicate result", "url", result.URL)
		return false
	}
	c.seen[result.URL] = struct{}{}
	c.results = append(c.results, result)
	if result.Broken {
		c.broken++
	}
	if result.Oversized {
		c.oversized++
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveResult(c.runID, &result); err != nil {
			slog.Error("Failed to archive result", "url", result.URL, "error", err)
		}
	}
	return true
}

// IsSuccess reports whether no recorded result is broken or oversized
func (c *Collector) IsSuccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken == 0 && c.oversized == 0
}

// Results returns a copy of the recorded results in recording order
func (c *Collector) Results() []CrawlResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CrawlResult, len(c.results))
	copy(out, c.results)
	return out
}

// Summary returns the number of results and how many are broken or oversized
func (c *Collector) Summary() (total, broken, oversized int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results), c.broken, c.oversized
}
