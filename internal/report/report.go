// Package report writes crawl results as JSON Lines or a human-readable listing and summarizes
// the problems found.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/masahif/find404/internal/config"
	"github.com/masahif/find404/internal/crawler"
)

// StatusError is written in place of a status code when no response was received
const StatusError = "error"

// StdoutPath selects standard output instead of a report file
const StdoutPath = "-"

// Record is one line of the JSONL report
type Record struct {
	URL        string  `json:"url"`
	StatusCode any     `json:"status_code"` // int, or "error" when the fetch failed
	SizeBytes  int64   `json:"size_bytes"`
	Referrer   *string `json:"referrer"` // null for the root URL
}

// NewRecord converts a crawl result into its report form
func NewRecord(r *crawler.CrawlResult) Record {
	rec := Record{
		URL:        r.URL,
		StatusCode: r.StatusCode,
		SizeBytes:  r.SizeBytes,
	}
	if r.FetchFailed() {
		rec.StatusCode = StatusError
	}
	if r.Referrer != "" {
		ref := r.Referrer
		rec.Referrer = &ref
	}
	return rec
}

// FileName returns the default report file name for a root URL: result_<domain>.jsonl, with
// any port separator replaced so the name is valid everywhere.
func FileName(rootURL string) string {
	cfg := config.CrawlConfig{RootURL: rootURL}
	host := strings.ToLower(cfg.RootHost())
	if host == "" {
		host = "unknown"
	}
	host = strings.NewReplacer(":", "_", "[", "", "]", "").Replace(host)
	return "result_" + host + ".jsonl"
}

// Sorted returns the results ordered by size, then URL
func Sorted(results []crawler.CrawlResult) []crawler.CrawlResult {
	out := make([]crawler.CrawlResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SizeBytes != out[j].SizeBytes {
			return out[i].SizeBytes < out[j].SizeBytes
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// WriteJSONL writes one JSON object per result, ordered by size then URL
func WriteJSONL(w io.Writer, results []crawler.CrawlResult) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for _, r := range Sorted(results) {
		if err := enc.Encode(NewRecord(&r)); err != nil {
			return fmt.Errorf("failed to encode result for %s: %w", r.URL, err)
		}
	}
	return bw.Flush()
}

// WriteConsole writes a readable listing of the results, ordered by size then URL
func WriteConsole(w io.Writer, rootURL string, results []crawler.CrawlResult) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Crawl Results for %s\n", rootURL)
	fmt.Fprintln(bw, strings.Repeat("=", 50))
	for _, r := range Sorted(results) {
		rec := NewRecord(&r)
		referrer := "N/A"
		if rec.Referrer != nil {
			referrer = *rec.Referrer
		}
		fmt.Fprintf(bw, "URL: %s\n", rec.URL)
		fmt.Fprintf(bw, "  Status: %v\n", rec.StatusCode)
		fmt.Fprintf(bw, "  Size: %d bytes\n", rec.SizeBytes)
		fmt.Fprintf(bw, "  Referrer: %s\n", referrer)
		if r.OffsiteRedirect {
			fmt.Fprintf(bw, "  Redirected off-site to: %s\n", r.FinalURL)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// Write renders the report in format to path, or to stdout when path is "-". An empty path
// uses FileName of the report's root URL. It returns the path written.
func Write(rep *crawler.Report, format, path string, stdout io.Writer) (string, error) {
	if path == "" {
		path = FileName(rep.RootURL)
	}

	if path == StdoutPath {
		return path, render(stdout, rep, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	if err := render(f, rep, format); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close report file: %w", err)
	}
	return path, nil
}

func render(w io.Writer, rep *crawler.Report, format string) error {
	switch format {
	case config.FormatJSONL, "":
		return WriteJSONL(w, rep.Results)
	case config.FormatConsole:
		return WriteConsole(w, rep.RootURL, rep.Results)
	default:
		return fmt.Errorf("%w: %q", config.ErrInvalidFormat, format)
	}
}

// Problems returns one diagnostic line per broken or oversized result, in report order
func Problems(results []crawler.CrawlResult, maxSize int64) []string {
	var lines []string
	for _, r := range Sorted(results) {
		switch {
		case r.FetchFailed():
			lines = append(lines, fmt.Sprintf("Error: %s failed to fetch (%s)", r.URL, r.ErrorType))
		case r.Broken:
			lines = append(lines, fmt.Sprintf("Error: %s returned status code %d", r.URL, r.StatusCode))
		}
		if r.Oversized {
			lines = append(lines, fmt.Sprintf("Error: %s exceeds maximum size of %d bytes (actual size: %d bytes)",
				r.URL, maxSize, r.SizeBytes))
		}
	}
	return lines
}

// WriteProblems prints the Problems lines to w
func WriteProblems(w io.Writer, results []crawler.CrawlResult, maxSize int64) error {
	for _, line := range Problems(results, maxSize) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
