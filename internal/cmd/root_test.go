package cmd

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/masahif/find404/internal/config"
	"github.com/masahif/find404/internal/crawler"
	"github.com/masahif/find404/internal/storage"
)

// execute runs a fresh root command with args and returns its stdout, stderr and error
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<a href="/about">About</a><a href="/missing">Missing</a>`))
		case "/about":
			_, _ = w.Write([]byte(`<a href="/">Home</a>`))
		case "/healthy":
			_, _ = w.Write([]byte(`<a href="/about">About</a>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSetVersionInfo(t *testing.T) {
	defer SetVersionInfo("", "")

	SetVersionInfo("1.2.3", "2026-10-16T10:00:00Z")

	expected := "1.2.3 (built 2026-10-16T10:00:00Z)"
	if got := newRootCmd().Version; got != expected {
		t.Errorf("Expected version %s, got %s", expected, got)
	}
}

func TestRootCmd(t *testing.T) {
	cmd := newRootCmd()
	if cmd.Use != "find_404 <url>" {
		t.Errorf("Expected use 'find_404 <url>', got %s", cmd.Use)
	}

	defaults := map[string]string{
		"max-size":   "0",
		"workers":    "10",
		"max-depth":  "-1",
		"verbose":    "false",
		"timeout":    "10s",
		"delay":      "0s",
		"user-agent": "find_404/1.0",
		"output":     "",
		"format":     "jsonl",
		"database":   "",
		"log-file":   "",
		"log-format": "text",
		"list-runs":  "false",
		"run":        "",
	}
	for name, want := range defaults {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			t.Errorf("flag --%s not defined", name)
			continue
		}
		if flag.DefValue != want {
			t.Errorf("flag --%s default = %q, want %q", name, flag.DefValue, want)
		}
	}

	for name, short := range map[string]string{"workers": "w", "verbose": "v", "output": "o", "format": "f", "database": "d"} {
		if flag := cmd.Flags().Lookup(name); flag == nil || flag.Shorthand != short {
			t.Errorf("flag --%s should have shorthand -%s", name, short)
		}
	}
}

func TestNoArgsPrintsUsage(t *testing.T) {
	stdout, _, err := execute(t)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(stdout, "Usage: find_404 <URL> [options]") || !strings.Contains(stdout, "find_404 example.com") {
		t.Errorf("usage output:\n%s", stdout)
	}
}

func TestTooManyArgs(t *testing.T) {
	_, _, err := execute(t, "http://a.example/", "http://b.example/")
	if err == nil {
		t.Fatal("Expected error for two URLs")
	}
	if ExitCode(err) != ExitFatal {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitFatal)
	}
}

func TestShowConfig(t *testing.T) {
	stdout, _, err := execute(t, "--show-config", "--workers", "3", "--max-size", "4096", "example.com")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{
		"# Current find_404 Configuration",
		"root_url: http://example.com",
		"workers: 3",
		"max_size: 4096",
		"max_depth: -1",
		"request_timeout: 10s",
		"format: jsonl",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("show-config output missing %q:\n%s", want, stdout)
		}
	}
}

func TestConfigSources(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "find404.yml")
	configContent := `
workers: 7
max_depth: 2
request_delay: 250ms
user_agent: "ConfigAgent/1.0"
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	t.Run("file", func(t *testing.T) {
		stdout, stderr, err := execute(t, "--config", configFile, "--show-config")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		for _, want := range []string{"workers: 7", "max_depth: 2", "request_delay: 250ms", "user_agent: ConfigAgent/1.0"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("output missing %q:\n%s", want, stdout)
			}
		}
		if !strings.Contains(stderr, "Using config file: "+configFile) {
			t.Errorf("stderr = %q", stderr)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("FIND404_WORKERS", "5")
		stdout, _, err := execute(t, "--config", configFile, "--show-config")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !strings.Contains(stdout, "workers: 5") {
			t.Errorf("env value not applied:\n%s", stdout)
		}
	})

	t.Run("flag overrides env", func(t *testing.T) {
		t.Setenv("FIND404_WORKERS", "5")
		stdout, _, err := execute(t, "--config", configFile, "--show-config", "-w", "12")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !strings.Contains(stdout, "workers: 12") {
			t.Errorf("flag value not applied:\n%s", stdout)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yml"), "example.com")
		if ExitCode(err) != ExitFatal {
			t.Errorf("ExitCode() = %d, want %d (err: %v)", ExitCode(err), ExitFatal, err)
		}
	})
}

func TestRunCrawlerValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"zero workers", []string{"--workers", "0", "http://example.com/"}, config.ErrInvalidWorkers},
		{"negative depth", []string{"--max-depth", "-5", "http://example.com/"}, config.ErrInvalidMaxDepth},
		{"negative size", []string{"--max-size", "-1", "http://example.com/"}, config.ErrInvalidMaxSize},
		{"bad format", []string{"--format", "xml", "http://example.com/"}, config.ErrInvalidFormat},
		{"bad scheme", []string{"ftp://example.com/"}, config.ErrInvalidRootURL},
		{"bad log format", []string{"--log-format", "xml", "http://example.com/"}, config.ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if ExitCode(err) != ExitFatal {
				t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitFatal)
			}
		})
	}
}

func TestRunCrawlerBrokenLinks(t *testing.T) {
	server := newTestSite(t)

	stdout, stderr, err := execute(t, server.URL, "--output", "-")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitFailure || !exitErr.Silent() {
		t.Fatalf("Execute() error = %v, want silent exit code %d", err, ExitFailure)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d report lines, want 3:\n%s", len(lines), stdout)
	}
	if !strings.Contains(stdout, `"referrer":null`) || !strings.Contains(stdout, `"status_code":404`) {
		t.Errorf("unexpected report:\n%s", stdout)
	}

	wantErr := "Error: " + server.URL + "/missing returned status code 404"
	if !strings.Contains(stderr, wantErr) {
		t.Errorf("stderr missing %q:\n%s", wantErr, stderr)
	}
}

func TestRunCrawlerHealthySite(t *testing.T) {
	server := newTestSite(t)
	out := filepath.Join(t.TempDir(), "report.jsonl")

	_, stderr, err := execute(t, server.URL+"/healthy", "-o", out)
	if err != nil {
		t.Fatalf("Execute() error = %v (stderr: %s)", err, stderr)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 3 {
		t.Errorf("report has %d lines, want 3:\n%s", n, data)
	}
	if strings.Contains(stderr, "Error:") {
		t.Errorf("healthy crawl printed errors:\n%s", stderr)
	}
}

func TestRunCrawlerConsoleFormat(t *testing.T) {
	server := newTestSite(t)

	stdout, _, err := execute(t, server.URL, "-o", "-", "-f", "console", "--max-depth", "0")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(stdout, "Crawl Results for "+server.URL) {
		t.Errorf("console output:\n%s", stdout)
	}
	if strings.Count(stdout, "URL: ") != 1 {
		t.Errorf("max-depth 0 should report only the root:\n%s", stdout)
	}
}

func TestRunCrawlerOversized(t *testing.T) {
	server := newTestSite(t)

	_, stderr, err := execute(t, server.URL+"/healthy", "-o", "-", "--max-size", "10")
	if ExitCode(err) != ExitFailure {
		t.Fatalf("ExitCode() = %d, want %d (err: %v)", ExitCode(err), ExitFailure, err)
	}
	if !strings.Contains(stderr, "exceeds maximum size of 10 bytes") {
		t.Errorf("stderr missing size error:\n%s", stderr)
	}
}

func TestRunCrawlerDatabase(t *testing.T) {
	server := newTestSite(t)
	dbPath := filepath.Join(t.TempDir(), "archive", "find404.db")

	_, _, err := execute(t, server.URL, "-o", "-", "-d", dbPath)
	if ExitCode(err) != ExitFailure {
		t.Fatalf("ExitCode() = %d, want %d (err: %v)", ExitCode(err), ExitFailure, err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns() = %+v, %v", runs, err)
	}
	if runs[0].Results != 3 || runs[0].Broken != 1 || runs[0].Interrupted {
		t.Errorf("archived run = %+v", runs[0])
	}
	results, err := store.GetRunResults(runs[0].ID)
	if err != nil || len(results) != 3 {
		t.Errorf("GetRunResults() = %d results, %v", len(results), err)
	}
}

func TestArchivedRuns(t *testing.T) {
	server := newTestSite(t)
	dbPath := filepath.Join(t.TempDir(), "find404.db")

	if _, _, err := execute(t, server.URL, "-o", "-", "-d", dbPath, "--max-size", "5000"); ExitCode(err) != ExitFailure {
		t.Fatalf("crawl ExitCode() = %d, want %d (err: %v)", ExitCode(err), ExitFailure, err)
	}

	t.Run("list", func(t *testing.T) {
		stdout, _, err := execute(t, "--database", dbPath, "--list-runs")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		if len(lines) != 2 || !strings.HasPrefix(lines[0], "RUN ID") {
			t.Fatalf("list output:\n%s", stdout)
		}
		for _, want := range []string{server.URL, "completed"} {
			if !strings.Contains(lines[1], want) {
				t.Errorf("run line missing %q: %s", want, lines[1])
			}
		}
	})

	t.Run("replay", func(t *testing.T) {
		store, err := storage.NewSQLiteStorage(dbPath)
		if err != nil {
			t.Fatalf("failed to open archive: %v", err)
		}
		runs, err := store.ListRuns(1)
		_ = store.Close()
		if err != nil || len(runs) != 1 {
			t.Fatalf("ListRuns() = %+v, %v", runs, err)
		}

		stdout, stderr, err := execute(t, "--database", dbPath, "--run", runs[0].ID, "-o", "-")
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != ExitFailure || !exitErr.Silent() {
			t.Fatalf("Execute() error = %v, want silent exit code %d", err, ExitFailure)
		}
		if n := strings.Count(stdout, "\n"); n != 3 {
			t.Errorf("replayed report has %d lines, want 3:\n%s", n, stdout)
		}
		if !strings.Contains(stderr, "/missing returned status code 404") {
			t.Errorf("stderr missing broken link:\n%s", stderr)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		_, _, err := execute(t, "--database", dbPath, "--run", "no-such-run", "-o", "-")
		if !errors.Is(err, storage.ErrRunNotFound) || ExitCode(err) != ExitFatal {
			t.Errorf("Execute() error = %v, want ErrRunNotFound with exit %d", err, ExitFatal)
		}
	})

	t.Run("no database", func(t *testing.T) {
		_, _, err := execute(t, "--list-runs")
		if !errors.Is(err, errNoDatabase) || ExitCode(err) != ExitFatal {
			t.Errorf("Execute() error = %v, want errNoDatabase with exit %d", err, ExitFatal)
		}
	})

	t.Run("missing database", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "absent.db")
		if _, _, err := execute(t, "--database", missing, "--list-runs"); ExitCode(err) != ExitFatal {
			t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitFatal)
		}
		if _, err := os.Stat(missing); !os.IsNotExist(err) {
			t.Error("Listing runs should not create a database")
		}
	})
}

func TestRunCrawlerJSONLogFile(t *testing.T) {
	server := newTestSite(t)
	logFile := filepath.Join(t.TempDir(), "logs", "find404.log")

	if _, _, err := execute(t, server.URL+"/healthy", "-o", "-", "--log-file", logFile, "--log-format", "json"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"Starting crawl"`) {
		t.Errorf("expected JSON log records, got:\n%s", content)
	}
}

func TestRunCrawlerRootUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	out := filepath.Join(t.TempDir(), "report.jsonl")
	_, _, err = execute(t, "http://"+addr+"/", "-o", out, "--timeout", "2s")

	if !errors.Is(err, crawler.ErrRootUnreachable) {
		t.Errorf("Execute() error = %v, want ErrRootUnreachable", err)
	}
	if ExitCode(err) != ExitFatal {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitFatal)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("No report should be written after a fatal error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"failure", &ExitError{Code: ExitFailure, Err: errCrawlFailed}, ExitFailure},
		{"wrapped", errors.Join(errors.New("context"), &ExitError{Code: ExitFailure}), ExitFailure},
		{"plain", errors.New("unknown flag: --nope"), ExitFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}

	if (&ExitError{Code: 3}).Error() != "exit status 3" {
		t.Error("ExitError without cause should describe the code")
	}
	if (&ExitError{Code: ExitFailure, Err: errCrawlInterrupted}).Silent() {
		t.Error("interrupted crawls are not silent")
	}
}
