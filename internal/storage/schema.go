package storage

// schemaVersion is stored in crawl_meta under the "schema_version" key
const schemaVersion = "1"

const schemaSQL = `
-- One row per crawl run
CREATE TABLE IF NOT EXISTS crawl_runs (
    id TEXT PRIMARY KEY NOT NULL,
    root_url TEXT NOT NULL,
    workers INTEGER NOT NULL,
    max_depth INTEGER NOT NULL,
    max_size_bytes INTEGER NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    interrupted INTEGER NOT NULL DEFAULT 0,

    -- Totals, filled in when the run finishes
    result_count INTEGER NOT NULL DEFAULT 0,
    broken_count INTEGER NOT NULL DEFAULT 0,
    oversized_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_root_started ON crawl_runs(root_url, started_at);

-- One row per visited URL per run
CREATE TABLE IF NOT EXISTS crawl_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    referrer TEXT,
    depth INTEGER NOT NULL,
    in_domain INTEGER NOT NULL,

    status_code INTEGER,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    content_type TEXT,
    final_url TEXT,
    offsite_redirect INTEGER NOT NULL DEFAULT 0,
    broken INTEGER NOT NULL DEFAULT 0,
    oversized INTEGER NOT NULL DEFAULT 0,

    ttfb_ms INTEGER,
    download_time_ms INTEGER,
    crawled_at DATETIME NOT NULL,

    -- Fetch failures
    error_type TEXT,
    error_message TEXT,

    UNIQUE(run_id, url)
);

CREATE INDEX IF NOT EXISTS idx_results_run ON crawl_results(run_id);
CREATE INDEX IF NOT EXISTS idx_results_url ON crawl_results(url);
CREATE INDEX IF NOT EXISTS idx_results_status_code ON crawl_results(status_code) WHERE status_code IS NOT NULL;

-- View for problems only (for analysis/reporting)
CREATE VIEW IF NOT EXISTS problem_results AS
SELECT
    run_id, url, referrer, status_code, size_bytes, error_type, broken, oversized
FROM crawl_results
WHERE broken = 1 OR oversized = 1;

-- Crawl meta table stores metadata as key-value pairs
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`
