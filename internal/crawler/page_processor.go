package crawler

import (
	"context"
	"log/slog"
	"mime"
	"strings"
	"time"
)

// DefaultPageProcessor implements the PageProcessor interface
type DefaultPageProcessor struct {
	fetcher   Fetcher
	extractor LinkExtractor
	scope     *Scope
	maxDepth  int   // negative means unlimited
	maxSize   int64 // 0 means unset
}

// NewPageProcessor creates a page processor. A negative maxDepth disables the depth limit and
// a zero maxSize disables the size check.
func NewPageProcessor(fetcher Fetcher, extractor LinkExtractor, scope *Scope, maxDepth int, maxSize int64) *DefaultPageProcessor {
	return &DefaultPageProcessor{
		fetcher:   fetcher,
		extractor: extractor,
		scope:     scope,
		maxDepth:  maxDepth,
		maxSize:   maxSize,
	}
}

// Process fetches one work item, classifies the outcome and, when the page may be
// traversed, extracts its links.
func (p *DefaultPageProcessor) Process(ctx context.Context, item *WorkItem) *PageResult {
	result := CrawlResult{
		URL:      item.URL,
		Referrer: item.Referrer,
		Depth:    item.Depth,
		InDomain: item.InDomain,
	}

	resp, err := p.fetcher.Fetch(ctx, item.URL)
	result.CrawledAt = time.Now().UTC()
	if err != nil {
		result.ErrorType = ClassifyFetchError(err)
		result.ErrorMessage = err.Error()
		result.Broken = true
		return &PageResult{Result: result, FetchErr: err}
	}

	result.StatusCode = resp.StatusCode
	result.SizeBytes = resp.Size
	result.ContentType = resp.ContentType
	result.FinalURL = resp.FinalURL
	result.TTFB = resp.Metrics.TTFB
	result.DownloadTime = resp.Metrics.DownloadTime
	result.Broken = IsBrokenStatus(resp.StatusCode)
	result.Oversized = p.maxSize > 0 && resp.Size > p.maxSize

	if item.InDomain && resp.FinalURL != "" && !p.scope.Contains(resp.FinalURL) {
		result.OffsiteRedirect = true
		slog.Debug("Redirected outside the crawl domain", "url", item.URL, "final_url", resp.FinalURL)
	}

	pr := &PageResult{Result: result}
	if !p.shouldExtract(item, &result) {
		return pr
	}

	base := resp.FinalURL
	if base == "" {
		base = item.URL
	}
	links, err := p.extractor.ExtractLinks(resp.Body, base)
	if err != nil {
		slog.Debug("Failed to parse HTML, treating as no links", "url", item.URL, "error", err)
		return pr
	}
	pr.Links = links

	slog.Debug("Found links", "url", item.URL, "links_count", len(links))
	return pr
}

// shouldExtract reports whether the page's links should be followed
func (p *DefaultPageProcessor) shouldExtract(item *WorkItem, result *CrawlResult) bool {
	switch {
	case !item.InDomain, result.OffsiteRedirect:
		return false
	case !isFollowableStatus(result.StatusCode):
		return false
	case !IsHTML(result.ContentType):
		return false
	case p.maxDepth >= 0 && item.Depth >= p.maxDepth:
		return false
	}
	return true
}

// IsHTML reports whether a Content-Type header denotes an HTML document
func IsHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

var _ PageProcessor = (*DefaultPageProcessor)(nil)
