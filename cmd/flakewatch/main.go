package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"flakewatch/internal/config"
	"flakewatch/internal/expand"
	"flakewatch/internal/lint"
	"flakewatch/internal/logging"
	"flakewatch/internal/report"
	"flakewatch/internal/store"
	"flakewatch/internal/watch"
)

const version = "1.0.0"

var (
	// Global flags
	configPath string
	verbose    bool
	noColor    bool
	format     string

	// Logger
	logger *zap.Logger

	// Set by commands that found problems; main exits with it.
	exitCode int
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "flakewatch",
	Short: "flakewatch - flake8-style linting for Python projects",
	Long: `flakewatch runs external Python linters (flake8 by default) over a
project, merges their findings with your layered settings, and can keep
re-linting files as you save them.

Settings are layered, lowest to highest precedence: built-in defaults,
the global config file, a project .flakewatch.yaml or .flakewatch.json,
environment overrides, and command-line flags. Values in linter command
lines may use ${project}, ${directory}, ${file}, ${home} and ${env:NAME}
tokens, expanded per lint target.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd, []string{"."})
	},
}

// checkCmd lints paths once and reports.
var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Lint Python files once and report findings",
	Long: `Lints the given files and directories (default: the current directory).
Directories are walked recursively for *.py files; hidden directories are
skipped. The exit code is 1 when any error or critical finding remains
after select/ignore filtering, 0 otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"."}
		}
		return runCheck(cmd, args)
	},
}

// watchCmd lints continuously as files change.
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Re-lint Python files as they are saved",
	Long: `Watches a directory tree and lints each Python file shortly after it
is written. Saves in rapid succession are coalesced per file. Stop with
Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show [dir]",
	Short: "Print the effective configuration as YAML",
	Long: `Prints the configuration that would apply to files in the given
directory (default: the current directory), after all layers are merged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default global config file",
	RunE:  runConfigInit,
}

var configExpandCmd = &cobra.Command{
	Use:   "expand [value...]",
	Short: "Show how ${...} tokens expand for a target file",
	Long: `Expands ${project}, ${directory}, ${file}, ${home} and ${env:NAME}
tokens in each value, the same way linter command lines are expanded.
Useful for debugging per-project linter arguments.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConfigExpand,
}

// historyCmd inspects recorded runs.
var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recent lint runs, or show one run's findings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the flakewatch version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "flakewatch %s\n", version)
	},
}

var (
	initForce     bool
	expandTarget  string
	historyLimit  int
	reportSuccess bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Global config file (default: ~/.config/flakewatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "", "Report format: text or json")

	checkCmd.Flags().BoolVar(&reportSuccess, "report-success", false, "Print a confirmation line when no problems are found")

	configInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	configExpandCmd.Flags().StringVar(&expandTarget, "file", ".", "File (or directory) the expansion is relative to")
	// Values being expanded may themselves look like flags (e.g. linter
	// arguments); stop flag parsing at the first positional argument.
	configExpandCmd.Flags().SetInterspersed(false)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "How many runs to list")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configExpandCmd)

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
	os.Exit(exitCode)
}

// globalConfigPath returns the --config value, or the platform default.
func globalConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultGlobalPath()
}

// loadConfig merges all settings layers for a target path and applies
// command-line flag overrides on top.
func loadConfig(target string) (*config.Config, error) {
	cfg, err := config.LoadLayered(globalConfigPath(), target)
	if err != nil {
		return nil, err
	}

	if format != "" {
		cfg.Report.Format = format
	}
	if noColor {
		cfg.Report.Color = false
	}
	if reportSuccess {
		cfg.Report.ReportOnSuccess = true
	}
	if verbose && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Initialize(projectRootFor(target), logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, err
	}

	return cfg, nil
}

// projectRootFor picks where debug logs live for a lint target.
func projectRootFor(target string) string {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "."
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		abs = filepath.Dir(abs)
	}
	if root := expand.FindProjectRoot(abs); root != "" {
		return root
	}
	return abs
}

func runCheck(cmd *cobra.Command, paths []string) error {
	cfg, err := loadConfig(paths[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	started := time.Now()
	runner := lint.NewRunner(cfg)
	results, err := runner.LintPaths(ctx, paths)
	if err != nil {
		return err
	}
	elapsed := time.Since(started)

	writer := report.NewWriter(cmd.OutOrStdout(), cfg.Report)
	summary, err := writer.Write(results)
	if err != nil {
		return err
	}

	logger.Debug("check finished",
		zap.Int("files", summary.Files),
		zap.Int("findings", summary.Total()),
		zap.Duration("elapsed", elapsed))

	if cfg.History.Enabled {
		if err := recordRun(cfg, started, elapsed, results); err != nil {
			logger.Warn("failed to record run history", zap.Error(err))
		}
	}

	if summary.Critical+summary.Errors > 0 {
		exitCode = 1
	}
	return nil
}

// recordRun persists a finished run and prunes old history.
func recordRun(cfg *config.Config, started time.Time, elapsed time.Duration, results []*lint.FileResult) error {
	s, err := store.Open(cfg.History.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()

	runID, err := s.RecordRun(started, elapsed, results)
	if err != nil {
		return err
	}
	logger.Debug("run recorded", zap.String("run_id", runID))

	return s.Prune(cfg.History.KeepRuns)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}

	runner := lint.NewRunner(cfg)
	writer := report.NewWriter(cmd.OutOrStdout(), cfg.Report)

	// Debounce timers fire on their own goroutines; keep reports whole.
	var reportMu sync.Mutex

	w, err := watch.New(dir, cfg.GetDebounceDelay(), cfg.Watch.LintOnCreate, func(path string) {
		ctx, cancel := context.WithTimeout(context.Background(), config.LinterTimeout)
		defer cancel()

		result, err := runner.LintFile(ctx, path)
		if err != nil {
			logger.Warn("lint failed", zap.String("file", path), zap.Error(err))
			return
		}

		reportMu.Lock()
		defer reportMu.Unlock()
		if _, err := writer.Write([]*lint.FileResult{result}); err != nil {
			logger.Warn("report failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "watching %s for changes (Ctrl-C to stop)\n", dir)
	<-ctx.Done()
	w.Stop()

	stats := w.Stats()
	logger.Info("watch stopped",
		zap.Int("events", stats.EventsSeen),
		zap.Int("lints", stats.LintsTriggered))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	target := "."
	if len(args) == 1 {
		target = args[0]
	}

	cfg, err := loadConfig(target)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := globalConfigPath()

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}

func runConfigExpand(cmd *cobra.Command, args []string) error {
	target := expandTarget
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		// Expansion needs a file context; pretend one inside the dir.
		target = filepath.Join(target, "__target__.py")
	}

	ectx := expand.NewContext(target)
	for _, value := range args {
		fmt.Fprintln(cmd.OutOrStdout(), ectx.Expand(value))
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.History.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		findings, err := s.Findings(args[0])
		if err != nil {
			return err
		}
		if len(findings) == 0 {
			fmt.Fprintln(out, "no findings recorded for this run")
			return nil
		}
		for _, w := range findings {
			fmt.Fprintf(out, "%s:%d:%d  %s  %s\n", w.File, w.Line, w.Col, w.Code, w.Message)
		}
		return nil
	}

	runs, err := s.RecentRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded yet")
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-20s  %8s  %6s  %8s\n", "RUN", "STARTED", "DURATION", "FILES", "FINDINGS")
	for _, run := range runs {
		fmt.Fprintf(out, "%-36s  %-20s  %8s  %6d  %8d\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Duration.Round(time.Millisecond),
			run.Files,
			run.Findings)
	}
	return nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
