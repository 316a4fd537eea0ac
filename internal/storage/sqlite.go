// Package storage provides data persistence functionality for the crawler.
// It implements an SQLite archive of crawl runs and the results recorded in each.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/masahif/find404/internal/crawler"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

var (
	// ErrRunNotFound is returned when a run ID is not in the archive
	ErrRunNotFound = errors.New("crawl run not found")
	// ErrSchemaVersion is returned when the archive was written with a different schema
	ErrSchemaVersion = errors.New("unsupported archive schema version")
)

// sqliteTimeLayout is the text form the driver uses for time.Time values
const sqliteTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

// SQLiteStorage implements crawler.ResultStore using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}

	// Initialize schema
	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// InitSchema creates the database schema
func (s *SQLiteStorage) InitSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000", // 30 second timeout for locks
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	version, err := s.GetMeta("schema_version")
	if err != nil {
		return err
	}
	if version != "" && version != schemaVersion {
		return fmt.Errorf("%w: %s (want %s)", ErrSchemaVersion, version, schemaVersion)
	}

	return s.SetMeta("schema_version", schemaVersion)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a crawl run
func (s *SQLiteStorage) BeginRun(run *crawler.RunInfo) error {
	_, err := s.db.Exec(`
		INSERT INTO crawl_runs (id, root_url, workers, max_depth, max_size_bytes, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.RootURL, run.Workers, run.MaxDepth, run.MaxSize, run.StartedAt.UTC())

	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}
	return nil
}

// SaveResult stores one crawl result under runID. A second result for the same URL in the
// same run replaces the first.
func (s *SQLiteStorage) SaveResult(runID string, result *crawler.CrawlResult) error {
	var statusCode sql.NullInt64
	if !result.FetchFailed() {
		statusCode = sql.NullInt64{Int64: int64(result.StatusCode), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO crawl_results (
			run_id, url, referrer, depth, in_domain,
			status_code, size_bytes, content_type, final_url, offsite_redirect, broken, oversized,
			ttfb_ms, download_time_ms, crawled_at,
			error_type, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		result.URL,
		nullString(result.Referrer),
		result.Depth,
		result.InDomain,
		statusCode,
		result.SizeBytes,
		nullString(result.ContentType),
		nullString(result.FinalURL),
		result.OffsiteRedirect,
		result.Broken,
		result.Oversized,
		result.TTFB.Milliseconds(),
		result.DownloadTime.Milliseconds(),
		result.CrawledAt.UTC(),
		nullString(result.ErrorType),
		nullString(result.ErrorMessage),
	)

	if err != nil {
		return fmt.Errorf("failed to save result for %s: %w", result.URL, err)
	}
	return nil
}

// FinishRun stores the end time, totals and interrupted flag of a run
func (s *SQLiteStorage) FinishRun(run *crawler.RunInfo) error {
	res, err := s.db.Exec(`
		UPDATE crawl_runs SET
			finished_at = ?,
			interrupted = ?,
			result_count = ?,
			broken_count = ?,
			oversized_count = ?
		WHERE id = ?
	`, run.FinishedAt.UTC(), run.Interrupted, run.Results, run.Broken, run.Oversized, run.ID)

	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// GetRun returns a stored run
func (s *SQLiteStorage) GetRun(runID string) (*crawler.RunInfo, error) {
	var run crawler.RunInfo
	var startedAt, finishedAt sql.NullString

	err := s.db.QueryRow(`
		SELECT id, root_url, workers, max_depth, max_size_bytes, started_at, finished_at,
			interrupted, result_count, broken_count, oversized_count
		FROM crawl_runs
		WHERE id = ?
	`, runID).Scan(
		&run.ID, &run.RootURL, &run.Workers, &run.MaxDepth, &run.MaxSize, &startedAt, &finishedAt,
		&run.Interrupted, &run.Results, &run.Broken, &run.Oversized,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTime(finishedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs first, at most limit of them (0 = all)
func (s *SQLiteStorage) ListRuns(limit int) ([]crawler.RunInfo, error) {
	query := `
		SELECT id FROM crawl_runs
		ORDER BY started_at DESC, id ASC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	_ = rows.Close()

	// The single connection is free again once rows is closed
	runs := make([]crawler.RunInfo, 0, len(ids))
	for _, id := range ids {
		run, err := s.GetRun(id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// GetRunResults returns the results of a run ordered by size, then URL
func (s *SQLiteStorage) GetRunResults(runID string) ([]crawler.CrawlResult, error) {
	rows, err := s.db.Query(`
		SELECT url, referrer, depth, in_domain, status_code, size_bytes, content_type, final_url,
			offsite_redirect, broken, oversized, ttfb_ms, download_time_ms, crawled_at,
			error_type, error_message
		FROM crawl_results
		WHERE run_id = ?
		ORDER BY size_bytes ASC, url ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []crawler.CrawlResult
	for rows.Next() {
		var r crawler.CrawlResult
		var referrer, contentType, finalURL, errorType, errorMessage, crawledAt sql.NullString
		var statusCode sql.NullInt64
		var ttfbMs, downloadMs int64

		if err := rows.Scan(
			&r.URL, &referrer, &r.Depth, &r.InDomain, &statusCode, &r.SizeBytes, &contentType, &finalURL,
			&r.OffsiteRedirect, &r.Broken, &r.Oversized, &ttfbMs, &downloadMs, &crawledAt,
			&errorType, &errorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		r.Referrer = referrer.String
		r.StatusCode = int(statusCode.Int64)
		r.ContentType = contentType.String
		r.FinalURL = finalURL.String
		r.ErrorType = errorType.String
		r.ErrorMessage = errorMessage.String
		r.TTFB = time.Duration(ttfbMs) * time.Millisecond
		r.DownloadTime = time.Duration(downloadMs) * time.Millisecond
		if r.CrawledAt, err = parseTime(crawledAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	return results, nil
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM crawl_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO crawl_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parseTime reads a DATETIME column, which the driver may hand back as text
func parseTime(v sql.NullString) (time.Time, error) {
	if !v.Valid || v.String == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, sqliteTimeLayout} {
		if t, err := time.Parse(layout, v.String); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse time %q", v.String)
}

var _ crawler.ResultStore = (*SQLiteStorage)(nil)
