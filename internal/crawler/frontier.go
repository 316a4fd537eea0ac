package crawler

import (
	"log/slog"
	"sync"
)

// Frontier is the pending-work queue together with the visited set and admission rules.
//
// All state lives under one mutex. A worker holds an item from Dequeue until it calls Done,
// and the crawl is drained only when the queue is empty and no worker holds an item, so a
// worker that is still extracting links keeps the others from exiting early.
type Frontier struct {
	scope    *Scope
	maxDepth int // negative means unlimited

	mu      sync.Mutex
	cond    *sync.Cond
	visited map[string]struct{}
	queue   []*WorkItem
	active  int
	closed  bool
	drained bool
	done    chan struct{}
}

// NewFrontier creates an empty frontier for the given scope. A negative maxDepth disables
// the depth limit.
func NewFrontier(scope *Scope, maxDepth int) *Frontier {
	f := &Frontier{
		scope:    scope,
		maxDepth: maxDepth,
		visited:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// TryAdmit normalizes rawURL (resolving it against referrer when relative) and enqueues it
// unless it was seen before, falls outside the depth or domain rules, or the frontier is
// closed. It returns true only for the single call that admits a given URL.
func (f *Frontier) TryAdmit(rawURL string, depth int, referrer string) bool {
	normalized, err := NormalizeURL(rawURL, referrer)
	if err != nil {
		slog.Debug("Dropping malformed URL", "url", rawURL, "referrer", referrer, "error", err)
		return false
	}

	inDomain := f.scope.Contains(normalized)
	if inDomain {
		if f.maxDepth >= 0 && depth > f.maxDepth {
			return false
		}
	} else if depth == 0 || referrer == "" || !f.scope.Contains(referrer) {
		// Off-site URLs are checked one hop out from an on-site page and never beyond
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if _, seen := f.visited[normalized]; seen {
		return false
	}
	f.visited[normalized] = struct{}{}

	f.queue = append(f.queue, &WorkItem{
		URL:      normalized,
		Depth:    depth,
		Referrer: referrer,
		InDomain: inDomain,
	})
	f.cond.Signal()

	return true
}

// Dequeue blocks until an item is available and hands it to the caller, who must call Done
// once the item is fully processed. It returns false once the crawl has drained or the
// frontier was closed.
func (f *Frontier) Dequeue() (*WorkItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.closed {
			return nil, false
		}
		if len(f.queue) > 0 {
			item := f.queue[0]
			f.queue[0] = nil
			f.queue = f.queue[1:]
			f.active++
			return item, true
		}
		if f.active == 0 {
			f.drainLocked()
			return nil, false
		}
		f.cond.Wait()
	}
}

// Done marks an item returned by Dequeue as finished. Call it only after every link found
// on the item's page has been offered to TryAdmit.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.active == 0 {
		panic("crawler: Frontier.Done called without a matching Dequeue")
	}
	f.active--
	if f.active == 0 && len(f.queue) == 0 {
		f.drainLocked()
	}
}

// Close stops admission and wakes every blocked Dequeue. Items still queued are discarded.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closeLocked()
}

// Drained is closed when the frontier runs out of work or is closed
func (f *Frontier) Drained() <-chan struct{} {
	return f.done
}

// Exhausted reports whether the crawl ran out of work, as opposed to being closed early
func (f *Frontier) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drained
}

// Admitted returns the number of distinct URLs admitted so far
func (f *Frontier) Admitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Pending returns the number of queued items not yet dequeued
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Active returns the number of dequeued items not yet marked done
func (f *Frontier) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *Frontier) drainLocked() {
	if f.closed {
		return
	}
	f.drained = true
	f.closeLocked()
}

func (f *Frontier) closeLocked() {
	if f.closed {
		return
	}
	f.closed = true
	f.queue = nil
	close(f.done)
	f.cond.Broadcast()
}
