// Package crawler provides the core web crawling functionality.
// It implements a concurrent, frontier-based link checker that visits every page of one site,
// checks the off-site pages it links to, and records one result per distinct URL.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/masahif/find404/internal/config"
)

// State is the coordinator's lifecycle stage
type State int32

// Coordinator states, in the only order they are entered
const (
	StateInit State = iota
	StateRunning
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	// ErrRootUnreachable is wrapped by the FatalError returned when the root URL cannot be fetched
	ErrRootUnreachable = errors.New("root URL unreachable")
	// ErrAlreadyStarted is returned by a second call to Run
	ErrAlreadyStarted = errors.New("crawler already started")
	// ErrWorkerPanic is returned by Run when processing an item panicked
	ErrWorkerPanic = errors.New("worker panicked")
)

// FatalError aborts a crawl before any report is produced
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Crawler coordinates the frontier, the worker pool and the collector for one crawl
type Crawler struct {
	config      *config.CrawlConfig
	fetcher     Fetcher
	extractor   LinkExtractor
	store       ResultStore // optional
	rateLimiter *RateLimiter

	state   atomic.Int32
	started atomic.Bool

	mu        sync.RWMutex
	frontier  *Frontier
	collector *Collector
	startTime time.Time
	cancel    context.CancelFunc
}

// NewCrawler creates a crawler. store may be nil when no archive is wanted. The configuration
// must not be modified once Run has been called.
func NewCrawler(cfg *config.CrawlConfig, fetcher Fetcher, extractor LinkExtractor, store ResultStore) *Crawler {
	return &Crawler{
		config:      cfg,
		fetcher:     fetcher,
		extractor:   extractor,
		store:       store,
		rateLimiter: NewRateLimiter(cfg.RequestDelay),
	}
}

// Run crawls from the configured root URL until every admitted URL has been visited or ctx is
// cancelled. A cancelled crawl still returns the results recorded so far, with Interrupted set.
// Invalid configuration or an unreachable root URL is reported as a *FatalError.
func (c *Crawler) Run(ctx context.Context) (*Report, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	defer c.setState(StateDone)

	if err := c.config.Validate(); err != nil {
		return nil, &FatalError{Err: fmt.Errorf("invalid configuration: %w", err)}
	}
	scope, err := NewScope(c.config.RootURL)
	if err != nil {
		return nil, &FatalError{Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := &RunInfo{
		ID:        uuid.NewString(),
		RootURL:   c.config.RootURL,
		Workers:   c.config.Workers,
		MaxDepth:  c.config.MaxDepth,
		MaxSize:   c.config.MaxSizeBytes,
		StartedAt: time.Now().UTC(),
	}

	frontier := NewFrontier(scope, c.config.MaxDepth)
	collector := NewCollector(c.store, run.ID)
	processor := NewPageProcessor(c.fetcher, c.extractor, scope, c.config.MaxDepth, c.config.MaxSizeBytes)

	c.mu.Lock()
	c.frontier = frontier
	c.collector = collector
	c.startTime = time.Now()
	c.cancel = cancel
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.BeginRun(run); err != nil {
			return nil, fmt.Errorf("failed to start archive run: %w", err)
		}
	}

	slog.Info("Starting crawl", "run_id", run.ID, "root_url", c.config.RootURL, "domain", scope.Domain(),
		"workers", c.config.Workers, "max_depth", c.config.MaxDepth, "max_size", c.config.MaxSizeBytes)

	if err := c.crawlRoot(ctx, processor, frontier, collector); err != nil {
		frontier.Close()
		c.finishRun(run, collector, true)
		return nil, err
	}

	// A failing worker cancels gctx, which closes the frontier for everyone else
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, frontier.Close)
	defer stop()

	c.setState(StateRunning)

	for i := 0; i < c.config.Workers; i++ {
		id := i
		g.Go(func() error {
			return c.worker(gctx, id, processor, frontier, collector)
		})
	}
	g.Go(func() error {
		<-frontier.Drained()
		c.setState(StateDraining)
		return nil
	})
	if c.config.StatsInterval > 0 {
		g.Go(func() error {
			c.statsReporter(frontier.Drained())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("Crawl aborted", "run_id", run.ID, "error", err)
		c.finishRun(run, collector, true)
		return nil, err
	}

	interrupted := ctx.Err() != nil && !frontier.Exhausted()
	c.finishRun(run, collector, interrupted)

	total, broken, oversized := collector.Summary()
	if interrupted {
		slog.Warn("Crawl interrupted", "results", total, "broken", broken, "oversized", oversized)
	} else {
		slog.Info("Crawl completed", "results", total, "broken", broken, "oversized", oversized,
			"duration", time.Since(c.startTime))
	}

	return &Report{
		RunID:       run.ID,
		RootURL:     c.config.RootURL,
		Results:     collector.Results(),
		Interrupted: interrupted,
		Healthy:     collector.IsSuccess(),
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}, nil
}

// crawlRoot admits and processes the root URL before any worker starts
func (c *Crawler) crawlRoot(ctx context.Context, processor PageProcessor, frontier *Frontier, collector *Collector) error {
	if !frontier.TryAdmit(c.config.RootURL, 0, "") {
		return &FatalError{Err: fmt.Errorf("%w: cannot admit %s", config.ErrInvalidRootURL, c.config.RootURL)}
	}
	item, ok := frontier.Dequeue()
	if !ok {
		return &FatalError{Err: errors.New("frontier closed before the root URL was processed")}
	}

	pr := processor.Process(context.WithoutCancel(ctx), item)
	if pr.FetchErr != nil {
		slog.Error("Failed to fetch root URL", "url", item.URL, "error", pr.FetchErr)
		return &FatalError{Err: fmt.Errorf("%w: %s: %w", ErrRootUnreachable, item.URL, pr.FetchErr)}
	}

	collector.Record(pr.Result)
	c.logResult(-1, pr)
	c.admitLinks(frontier, item, pr.Links)
	frontier.Done()
	return nil
}

// worker processes items until the frontier drains or is closed. It only fails when
// processing an item panics.
func (c *Crawler) worker(ctx context.Context, id int, processor PageProcessor, frontier *Frontier, collector *Collector) error {
	slog.Debug("Worker started", "worker_id", id)
	defer slog.Debug("Worker stopped", "worker_id", id)

	for {
		item, ok := frontier.Dequeue()
		if !ok {
			return nil
		}
		if err := c.runItem(ctx, id, processor, frontier, collector, item); err != nil {
			return err
		}
	}
}

// runItem processes one dequeued item and always releases it, turning a panic into an error
func (c *Crawler) runItem(ctx context.Context, id int, processor PageProcessor, frontier *Frontier, collector *Collector, item *WorkItem) (err error) {
	defer frontier.Done()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: worker %d on %s: %v", ErrWorkerPanic, id, item.URL, r)
		}
	}()
	c.processItem(ctx, id, processor, frontier, collector, item)
	return nil
}

// processItem fetches one item, records its result and admits its links. The fetch itself is
// detached from ctx so an in-flight request completes and is recorded after cancellation.
func (c *Crawler) processItem(ctx context.Context, id int, processor PageProcessor, frontier *Frontier, collector *Collector, item *WorkItem) {
	if err := c.rateLimiter.Wait(ctx, item.URL); err != nil {
		slog.Debug("Worker skipped URL", "worker_id", id, "url", item.URL, "error", err)
		return
	}

	pr := processor.Process(context.WithoutCancel(ctx), item)
	collector.Record(pr.Result)
	c.logResult(id, pr)
	c.admitLinks(frontier, item, pr.Links)
}

func (c *Crawler) admitLinks(frontier *Frontier, item *WorkItem, links []string) {
	admitted := 0
	for _, link := range links {
		if frontier.TryAdmit(link, item.Depth+1, item.URL) {
			admitted++
		}
	}
	if admitted > 0 {
		slog.Debug("Admitted links", "url", item.URL, "found", len(links), "admitted", admitted)
	}
}

// logResult logs the outcome of one page
func (c *Crawler) logResult(id int, pr *PageResult) {
	r := &pr.Result
	switch {
	case r.FetchFailed():
		slog.Debug("Worker failed to fetch URL", "worker_id", id, "url", r.URL, "error_type", r.ErrorType, "error", r.ErrorMessage)
	case r.Broken:
		slog.Debug("Worker found broken URL", "worker_id", id, "url", r.URL, "status", r.StatusCode, "referrer", r.Referrer)
	default:
		slog.Debug("Worker processed URL", "worker_id", id, "url", r.URL, "status", r.StatusCode,
			"size", r.SizeBytes, "depth", r.Depth, "links", len(pr.Links))
	}
	if r.Oversized {
		slog.Debug("Worker found oversized URL", "worker_id", id, "url", r.URL, "size", r.SizeBytes)
	}
}

func (c *Crawler) finishRun(run *RunInfo, collector *Collector, interrupted bool) {
	run.FinishedAt = time.Now().UTC()
	run.Interrupted = interrupted
	run.Results, run.Broken, run.Oversized = collector.Summary()

	if c.store == nil {
		return
	}
	if err := c.store.FinishRun(run); err != nil {
		slog.Error("Failed to finish archive run", "run_id", run.ID, "error", err)
	}
}

// statsReporter periodically reports crawling statistics
func (c *Crawler) statsReporter(done <-chan struct{}) {
	ticker := time.NewTicker(c.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			stats := c.GetStats()
			slog.Info("Crawling stats", "admitted", stats.Admitted, "recorded", stats.Recorded,
				"pending", stats.Pending, "active", stats.Active, "broken", stats.Broken,
				"oversized", stats.Oversized, "duration", stats.Duration)
		}
	}
}

// Stop cancels a running crawl. Run returns once in-flight fetches complete.
func (c *Crawler) Stop() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// State returns the coordinator's current state
func (c *Crawler) State() State {
	return State(c.state.Load())
}

func (c *Crawler) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		slog.Debug("Crawler state changed", "from", old, "to", s)
	}
}

// GetStats returns current crawling statistics
func (c *Crawler) GetStats() CrawlStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CrawlStats{StartTime: c.startTime}
	if c.frontier == nil {
		return stats
	}
	stats.Admitted = c.frontier.Admitted()
	stats.Pending = c.frontier.Pending()
	stats.Active = c.frontier.Active()
	stats.Recorded, stats.Broken, stats.Oversized = c.collector.Summary()
	stats.Duration = time.Since(c.startTime)
	return stats
}
