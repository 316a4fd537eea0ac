// Package cmd provides the command-line interface for find_404.
// It handles command parsing, configuration loading, crawler execution and reporting.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masahif/find404/internal/config"
	"github.com/masahif/find404/internal/crawler"
	"github.com/masahif/find404/internal/logging"
	"github.com/masahif/find404/internal/parser"
	"github.com/masahif/find404/internal/report"
	"github.com/masahif/find404/internal/storage"
)

const (
	configName = "find404"
	envPrefix  = "FIND404"
)

var (
	version   string
	buildTime string
)

// newRootCmd builds the base command. Each call returns a command with fresh flag state.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find_404 <url>",
		Short: "Crawl a website and find broken links",
		Long: `find_404 crawls every page of a website, checks every link it finds
(including links to other sites, one hop out) and reports broken or oversized pages.

Results are written as JSON Lines to result_<domain>.jsonl. The exit status is 0 when
every page is healthy, 1 when broken or oversized pages were found, and 2 on fatal errors.`,
		Args:              cobra.MaximumNArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfigSources,
		RunE:              runCrawler,
	}
	if version != "" {
		cmd.Version = versionString()
	}

	cmd.PersistentFlags().String("config", "", "config file (default is ./find404.yml)")
	cmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")
	cmd.Flags().Bool("list-runs", false, "List the crawl runs archived in --database and exit")
	cmd.Flags().String("run", "", "Write the report of an archived run from --database instead of crawling")

	// Crawl flags
	cmd.Flags().Int64("max-size", 0, "Flag pages larger than BYTES (0=no limit)")
	cmd.Flags().IntP("workers", "w", 10, "Number of concurrent workers")
	cmd.Flags().Int("max-depth", config.UnlimitedDepth, "Maximum link depth to crawl (-1=unlimited)")
	cmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.Flags().DurationP("timeout", "t", 10*time.Second, "HTTP request timeout")
	cmd.Flags().Duration("delay", 0, "Minimum delay between requests to the same host (0=disabled)")
	cmd.Flags().StringP("user-agent", "u", "find_404/1.0", "HTTP User-Agent header")

	// Output flags
	cmd.Flags().StringP("output", "o", "", "Report file (default result_<domain>.jsonl, '-' for stdout)")
	cmd.Flags().StringP("format", "f", config.FormatJSONL, "Report format: jsonl or console")
	cmd.Flags().StringP("database", "d", "", "Archive runs and results to this SQLite database")
	cmd.Flags().String("log-file", "", "Also write logs to this file (rotated)")
	cmd.Flags().String("log-format", logging.FormatText, "Log record format: text or json")

	return cmd
}

// Execute builds the root command and runs it with the process arguments
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext is Execute with a parent context for the crawl
func ExecuteContext(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
}

func versionString() string {
	return fmt.Sprintf("%s (built %s)", version, buildTime)
}

// flagBindings maps viper keys to command-line flags
var flagBindings = []struct {
	viperKey string
	flagName string
}{
	{"max_size", "max-size"},
	{"workers", "workers"},
	{"max_depth", "max-depth"},
	{"verbose", "verbose"},
	{"request_timeout", "timeout"},
	{"request_delay", "delay"},
	{"user_agent", "user-agent"},
	{"output", "output"},
	{"format", "format"},
	{"database_path", "database"},
	{"log_file", "log-file"},
	{"log_format", "log-format"},
}

// bindFlags binds the command's flags to viper keys
func bindFlags(cmd *cobra.Command) error {
	for _, bind := range flagBindings {
		if err := viper.BindPFlag(bind.viperKey, cmd.Flags().Lookup(bind.flagName)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", bind.flagName, err)
		}
	}
	return nil
}

// loadConfigSources binds flags and reads the config file and environment variables
func loadConfigSources(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}
	cfgFile, _ := cmd.Flags().GetString("config")
	return initConfig(cfgFile, cmd.ErrOrStderr())
}

// initConfig reads in config file and ENV variables if set.
func initConfig(cfgFile string, stderr io.Writer) error {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(configName)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return &ExitError{Code: ExitFatal, Err: fmt.Errorf("failed to read config file: %w", err)}
		}
		return nil
	}
	fmt.Fprintf(stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	return nil
}

// loadConfig builds the crawl configuration from defaults, config file, environment and flags
func loadConfig(args []string) (*config.CrawlConfig, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(args) > 0 {
		cfg.RootURL = args[0]
	}
	cfg.NormalizeRootURL()
	return cfg, nil
}

func printUsageExamples(w io.Writer) {
	fmt.Fprint(w, `find_404 - Crawl websites and find broken links

Usage: find_404 <URL> [options]

Examples:
  # Check for broken links, writing result_example.com.jsonl
  find_404 example.com

  # Human-readable report on stdout
  find_404 example.com --format console --output -

  # Flag pages over 1 MB and stop two links deep
  find_404 https://example.com --max-size 1048576 --max-depth 2

  # Archive runs in SQLite, list them later and re-emit one run's report
  find_404 example.com --database find404.db
  find_404 --database find404.db --list-runs
  find_404 --database find404.db --run <run-id> --output -

For more options, use: find_404 --help
`)
}

func showCurrentConfig(w io.Writer, cfg *config.CrawlConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	// Validate configuration before showing it
	if err := cfg.Validate(); err != nil && !errors.Is(err, config.ErrNoRootURL) {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current find_404 Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./%s.yml\n", configName)
	fmt.Fprintf(w, "# Environment variables prefix: %s_\n\n", envPrefix)

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (%s_ prefix)\n", envPrefix)
	fmt.Fprintf(w, "# 3. Configuration file (%s.yml)\n", configName)
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")

	return nil
}

func runCrawler(cmd *cobra.Command, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")
	listRuns, _ := cmd.Flags().GetBool("list-runs")
	runID, _ := cmd.Flags().GetString("run")

	cfg, err := loadConfig(args)
	if err != nil {
		return &ExitError{Code: ExitFatal, Err: err}
	}

	switch {
	case showConfig:
		return showCurrentConfig(cmd.OutOrStdout(), cfg)
	case listRuns:
		return listArchivedRuns(cmd.OutOrStdout(), cfg)
	case runID != "":
		rep, err := loadArchivedRun(cfg, runID)
		if err != nil {
			return &ExitError{Code: ExitFatal, Err: err}
		}
		return emitReport(cmd, cfg, rep)
	}

	if cfg.RootURL == "" {
		printUsageExamples(cmd.OutOrStdout())
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return &ExitError{Code: ExitFatal, Err: fmt.Errorf("invalid configuration: %w", err)}
	}

	closeLog, err := logging.SetDefault(logging.ForVerbosity(cfg.Verbose, cfg.LogFormat, cfg.LogFile))
	if err != nil {
		return &ExitError{Code: ExitFatal, Err: fmt.Errorf("failed to set up logging: %w", err)}
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close log file: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := crawl(ctx, cfg)
	if err != nil {
		return &ExitError{Code: ExitFatal, Err: err}
	}
	return emitReport(cmd, cfg, rep)
}

// emitReport writes the report and the problem summary and maps the outcome to an exit code
func emitReport(cmd *cobra.Command, cfg *config.CrawlConfig, rep *crawler.Report) error {
	path, err := report.Write(rep, cfg.Format, cfg.OutputPath, cmd.OutOrStdout())
	if err != nil {
		return &ExitError{Code: ExitFatal, Err: err}
	}
	if path != report.StdoutPath {
		slog.Info("Report written", "path", path, "results", len(rep.Results))
	}

	if err := report.WriteProblems(cmd.ErrOrStderr(), rep.Results, cfg.MaxSizeBytes); err != nil {
		return &ExitError{Code: ExitFatal, Err: err}
	}

	switch {
	case rep.Interrupted:
		return &ExitError{Code: ExitFailure, Err: errCrawlInterrupted}
	case !rep.Success():
		return &ExitError{Code: ExitFailure, Err: errCrawlFailed}
	}
	return nil
}

// openArchive opens the --database archive for reading
func openArchive(cfg *config.CrawlConfig) (*storage.SQLiteStorage, error) {
	if cfg.DatabasePath == "" {
		return nil, errNoDatabase
	}
	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return storage.NewSQLiteStorage(cfg.DatabasePath)
}

// listArchivedRuns prints one line per archived run, newest first
func listArchivedRuns(w io.Writer, cfg *config.CrawlConfig) error {
	store, err := openArchive(cfg)
	if err != nil {
		return &ExitError{Code: ExitFatal, Err: err}
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(0)
	if err != nil {
		return &ExitError{Code: ExitFatal, Err: err}
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No archived runs")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tROOT URL\tRESULTS\tBROKEN\tOVERSIZED\tSTATUS")
	for _, run := range runs {
		status := "completed"
		switch {
		case run.Interrupted:
			status = "interrupted"
		case run.FinishedAt.IsZero():
			status = "unfinished"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n", run.ID, run.StartedAt.Format(time.RFC3339),
			run.RootURL, run.Results, run.Broken, run.Oversized, status)
	}
	return tw.Flush()
}

// loadArchivedRun rebuilds the report of one archived run. The report goes to the run's own
// result_<domain>.jsonl unless --output says otherwise.
func loadArchivedRun(cfg *config.CrawlConfig, runID string) (*crawler.Report, error) {
	store, err := openArchive(cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	results, err := store.GetRunResults(runID)
	if err != nil {
		return nil, err
	}
	if run.MaxSize > 0 {
		cfg.MaxSizeBytes = run.MaxSize
	}
	return crawler.ReportFromRun(run, results), nil
}
// crawl runs one crawl with the HTTP client, link extractor and optional archive
func crawl(ctx context.Context, cfg *config.CrawlConfig) (*crawler.Report, error) {
	httpClient := crawler.NewHTTPClient(cfg.UserAgent, cfg.RequestTimeout)
	defer httpClient.Close()

	var store crawler.ResultStore
	if cfg.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		sqliteStore, err := storage.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer func() { _ = sqliteStore.Close() }()
		store = sqliteStore
	}

	c := crawler.NewCrawler(cfg, httpClient, parser.NewLinkExtractor(), store)
	return c.Run(ctx)
}
