// Package parser extracts outgoing links from HTML documents.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// LinkExtractor resolves the href of every anchor in a document to an absolute URL
type LinkExtractor struct {
	allowedSchemes []string
}

// NewLinkExtractor creates an extractor that keeps http and https links
func NewLinkExtractor() *LinkExtractor {
	return NewLinkExtractorWithSchemes([]string{"https://", "http://"})
}

// NewLinkExtractorWithSchemes creates an extractor with custom allowed schemes
func NewLinkExtractorWithSchemes(allowedSchemes []string) *LinkExtractor {
	if len(allowedSchemes) == 0 {
		allowedSchemes = []string{"https://", "http://"}
	}
	return &LinkExtractor{allowedSchemes: allowedSchemes}
}

// ExtractLinks parses htmlContent and returns the distinct absolute URLs its anchors point to,
// in document order. Relative links are resolved against baseURL, or against the document's
// <base href> when one is present. Fragments are left in place; callers normalize.
func (e *LinkExtractor) ExtractLinks(htmlContent []byte, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base URL %q is not absolute", baseURL)
	}

	doc, err := html.Parse(bytes.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	w := &walker{
		extractor: e,
		base:      base,
		seen:      make(map[string]struct{}),
		links:     []string{},
	}
	w.traverse(doc)

	return w.links, nil
}

// walker holds per-document state so a LinkExtractor can be shared between goroutines
type walker struct {
	extractor *LinkExtractor
	base      *url.URL
	baseSet   bool
	seen      map[string]struct{}
	links     []string
}

func (w *walker) traverse(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "base":
			w.parseBase(n)
		case "a":
			w.parseAnchor(n)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.traverse(c)
	}
}

// parseBase honours the first <base href> of the document
func (w *walker) parseBase(n *html.Node) {
	if w.baseSet {
		return
	}
	href := strings.TrimSpace(attr(n, "href"))
	if href == "" {
		return
	}
	ref, err := url.Parse(href)
	if err != nil {
		return
	}
	w.base = w.base.ResolveReference(ref)
	w.baseSet = true
}

func (w *walker) parseAnchor(n *html.Node) {
	href := strings.TrimSpace(attr(n, "href"))
	if href == "" || strings.HasPrefix(href, "#") {
		return
	}

	ref, err := url.Parse(href)
	if err != nil {
		return
	}

	// javascript:, mailto:, tel:, data: and friends carry a scheme of their own
	abs := w.base.ResolveReference(ref)
	if !w.extractor.isAllowedScheme(abs.Scheme) {
		return
	}

	absURL := abs.String()
	if _, dup := w.seen[absURL]; dup {
		return
	}
	w.seen[absURL] = struct{}{}
	w.links = append(w.links, absURL)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// isAllowedScheme checks a parsed URL scheme against the allowed schemes
func (e *LinkExtractor) isAllowedScheme(scheme string) bool {
	for _, allowed := range e.allowedSchemes {
		if strings.EqualFold(scheme, strings.TrimSuffix(allowed, "://")) {
			return true
		}
	}
	return false
}
