package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces requests to the same host by a fixed delay. A nil *RateLimiter never
// waits, which is how a zero --delay is expressed.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	delay    time.Duration
}

// NewRateLimiter returns a limiter allowing one request per delay per host, or nil when
// delay is not positive.
func NewRateLimiter(delay time.Duration) *RateLimiter {
	if delay <= 0 {
		return nil
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
	}
}

// Wait blocks until a request to rawURL's host may proceed or ctx is done
func (r *RateLimiter) Wait(ctx context.Context, rawURL string) error {
	if r == nil {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	return r.limiter(strings.ToLower(u.Host)).Wait(ctx)
}

// Hosts returns how many hosts have been seen
func (r *RateLimiter) Hosts() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

func (r *RateLimiter) limiter(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(r.delay), 1)
		r.limiters[host] = l
	}
	return l
}
