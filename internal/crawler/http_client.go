package crawler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"os"
	"sync"
	"time"
)

// maxRedirects bounds redirect chains the client follows
const maxRedirects = 10

// errReadIdle is the cause of a fetch abandoned because the body stopped arriving
var errReadIdle = fmt.Errorf("response body idle: %w", os.ErrDeadlineExceeded)

// HTTPClient fetches pages and records timing metrics
type HTTPClient struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// HTTPMetrics contains performance metrics for an HTTP request
type HTTPMetrics struct {
	TTFB         time.Duration // Time to First Byte
	DownloadTime time.Duration // Total download time
	DNSLookup    time.Duration // DNS lookup time
	TCPConnect   time.Duration // TCP connection time
	TLSHandshake time.Duration // TLS handshake time
}

// HTTPResponse contains the response and metrics
type HTTPResponse struct {
	StatusCode  int
	Body        []byte // only kept for HTML responses
	Size        int64  // bytes read from the body
	ContentType string
	FinalURL    string // After following redirects
	Redirected  bool
	Metrics     HTTPMetrics
}

// NewHTTPClient creates a new HTTP client. timeout bounds connecting, waiting for response
// headers and each wait for more body bytes; a large page that keeps arriving is not cut off.
func NewHTTPClient(userAgent string, timeout time.Duration) *HTTPClient {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &HTTPClient{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// Fetch performs a GET request for rawURL, following redirects, and reads the whole body.
// A response with any status code is a successful fetch; an error means no usable response
// was received (DNS failure, refused connection, timeout, too many redirects).
func (h *HTTPClient) Fetch(ctx context.Context, rawURL string) (*HTTPResponse, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "*/*")

	// Dual-stack dialing may report connects from several goroutines
	var mu sync.Mutex
	var metrics HTTPMetrics
	var dnsStart, connectStart, tlsStart, firstByteTime time.Time

	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			mu.Lock()
			dnsStart = time.Now()
			mu.Unlock()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			mu.Lock()
			metrics.DNSLookup = time.Since(dnsStart)
			mu.Unlock()
		},
		ConnectStart: func(network, addr string) {
			mu.Lock()
			connectStart = time.Now()
			mu.Unlock()
		},
		ConnectDone: func(network, addr string, err error) {
			mu.Lock()
			metrics.TCPConnect = time.Since(connectStart)
			mu.Unlock()
		},
		TLSHandshakeStart: func() {
			mu.Lock()
			tlsStart = time.Now()
			mu.Unlock()
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			mu.Lock()
			metrics.TLSHandshake = time.Since(tlsStart)
			mu.Unlock()
		},
		GotFirstResponseByte: func() {
			mu.Lock()
			firstByteTime = time.Now()
			mu.Unlock()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	startTime := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	contentType := resp.Header.Get("Content-Type")
	body := &idleReader{r: resp.Body, timer: time.AfterFunc(h.timeout, func() { cancel(errReadIdle) }), timeout: h.timeout}
	defer body.timer.Stop()

	// Only HTML is parsed later; everything else is just counted
	var content []byte
	var size int64
	if IsHTML(contentType) {
		content, err = io.ReadAll(body)
		size = int64(len(content))
	} else {
		size, err = io.Copy(io.Discard, body)
	}
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, errReadIdle) {
			err = cause
		}
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	mu.Lock()
	if !firstByteTime.IsZero() {
		metrics.TTFB = firstByteTime.Sub(startTime)
	}
	metrics.DownloadTime = time.Since(startTime)
	mu.Unlock()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &HTTPResponse{
		StatusCode:  resp.StatusCode,
		Body:        content,
		Size:        size,
		ContentType: contentType,
		FinalURL:    finalURL,
		Redirected:  finalURL != rawURL,
		Metrics:     metrics,
	}, nil
}

// idleReader restarts its timer on every read, so the timer only fires when the body stalls
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

// Close releases idle connections
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}

// ClassifyFetchError maps a fetch error to one of the ErrorType constants
func ClassifyFetchError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ErrorTypeTimeout
		}
		return ErrorTypeDNS
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ErrorTypeConnection
	}

	return ErrorTypeNetwork
}

var _ Fetcher = (*HTTPClient)(nil)
