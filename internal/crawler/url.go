package crawler

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var (
	// ErrRelativeWithoutBase is returned when a relative link has no page to resolve against
	ErrRelativeWithoutBase = errors.New("relative URL without referrer")
	// ErrUnsupportedScheme is returned for anything other than http and https
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	// ErrMissingHost is returned when an absolute URL has no host
	ErrMissingHost = errors.New("URL has no host")
)

// NormalizeURL resolves rawURL against base (which may be empty) and returns its canonical
// form: lowercase scheme and host, default port removed, fragment removed and an empty path
// replaced by "/". Two URLs that differ only in those respects normalize identically.
func NormalizeURL(rawURL, base string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	if !ref.IsAbs() {
		if base == "" {
			return "", ErrRelativeWithoutBase
		}
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("invalid base URL %q: %w", base, err)
		}
		if !baseURL.IsAbs() {
			return "", ErrRelativeWithoutBase
		}
		ref = baseURL.ResolveReference(ref)
	}

	u := *ref
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", ErrMissingHost
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}

	return u.String(), nil
}

// Scope decides whether a URL belongs to the crawled site. Hostnames are compared by
// registrable domain (eTLD+1), so sub.example.com is in scope for example.com. IP addresses
// and single-label hosts such as localhost have no registrable domain and must match the
// root's host and port exactly.
type Scope struct {
	domain string // registrable domain, empty when exact matching is used
	host   string // host:port of the root, used for exact matching
}

// NewScope derives the crawl scope from the root URL
func NewScope(rootURL string) (*Scope, error) {
	u, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("invalid root URL: %w", err)
	}
	if u.Hostname() == "" {
		return nil, ErrMissingHost
	}
	u.Scheme = strings.ToLower(u.Scheme)

	return &Scope{
		domain: registrableDomain(u.Hostname()),
		host:   strings.ToLower(stripDefaultPort(u)),
	}, nil
}

// Domain returns the registrable domain, or the exact host for IP and single-label roots
func (s *Scope) Domain() string {
	if s.domain != "" {
		return s.domain
	}
	return s.host
}

// Contains reports whether rawURL is in scope. Unparsable URLs are out of scope.
func (s *Scope) Contains(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}

	if s.domain == "" {
		u.Scheme = scheme
		return strings.EqualFold(stripDefaultPort(u), s.host)
	}
	return registrableDomain(u.Hostname()) == s.domain
}

func stripDefaultPort(u *url.URL) string {
	port := u.Port()
	if port == "" || (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		if strings.Contains(u.Hostname(), ":") {
			return "[" + u.Hostname() + "]"
		}
		return u.Hostname()
	}
	return u.Host
}

// registrableDomain returns the eTLD+1 of host, or "" when it has none
func registrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return domain
}
