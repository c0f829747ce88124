// Package config loads and merges flakewatch settings.
//
// Settings are layered, lowest to highest precedence: built-in defaults,
// the global config file (~/.config/flakewatch/config.yaml), a project
// .flakewatch.yaml, a project .flakewatch.json settings block, environment
// overrides, and finally command-line flags applied by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all flakewatch configuration.
type Config struct {
	// Linters to run, keyed by name.
	Linters map[string]LinterConfig `yaml:"linters"`

	// Python interpreter settings.
	Python PythonConfig `yaml:"python"`

	// Error code prefixes to report exclusively (e.g. ["E", "W6"]).
	Select []string `yaml:"select"`

	// Error code prefixes to skip (e.g. ["E303", "W"]).
	Ignore []string `yaml:"ignore"`

	// File patterns to skip entirely, matched per path segment
	// (e.g. ["*_pb2.py", "test*.py"]).
	IgnoreFiles []string `yaml:"ignore_files"`

	// Maximum line length passed to linters that take one. 0 keeps the
	// linter's own default.
	MaxLineLength int `yaml:"max_line_length"`

	// Extra builtin names linters should treat as defined (like "_").
	Builtins []string `yaml:"builtins"`

	// Flake8 config file compatibility.
	Flake8 Flake8CompatConfig `yaml:"flake8"`

	// Watch mode settings.
	Watch WatchConfig `yaml:"watch"`

	// Report settings.
	Report ReportConfig `yaml:"report"`

	// Run history settings.
	History HistoryConfig `yaml:"history"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// LinterConfig configures one external linter. Command, Args and Paths
// values may embed ${...} tokens; they are expanded per lint target.
type LinterConfig struct {
	// Enabled controls whether the linter runs. Defaults to true for
	// linters defined in config files.
	Enabled *bool `yaml:"enabled" json:"enabled"`

	// Command is the executable to run. Ignored when Module is set.
	Command string `yaml:"command" json:"command"`

	// Module runs the linter as "<interpreter> -m <module>" so it picks
	// up the interpreter's site-packages.
	Module string `yaml:"module" json:"module"`

	// Args are extra command-line arguments.
	Args []string `yaml:"args" json:"args"`

	// Paths are prepended to PYTHONPATH for the linter process.
	Paths []string `yaml:"paths" json:"paths"`
}

// IsEnabled reports whether the linter should run.
func (l LinterConfig) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// PythonConfig selects the interpreter used for Module-style linters.
type PythonConfig struct {
	// Interpreter is an absolute path, or "auto" to pick the platform
	// default (python3, or python on Windows).
	Interpreter string `yaml:"interpreter"`
}

// ResolveInterpreter returns the interpreter binary to invoke.
func (p PythonConfig) ResolveInterpreter() string {
	if p.Interpreter != "" && p.Interpreter != "auto" {
		return p.Interpreter
	}
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// Flake8CompatConfig controls reading of flake8's own config files.
type Flake8CompatConfig struct {
	// UseGlobalConfig reads $XDG_CONFIG_HOME/flake8 (or ~/.config/flake8).
	UseGlobalConfig bool `yaml:"use_global_config"`

	// UseProjectConfig reads setup.cfg, tox.ini or .pep8 found walking
	// up from the lint target.
	UseProjectConfig bool `yaml:"use_project_config"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// DebounceDelay coalesces rapid saves of the same file.
	DebounceDelay string `yaml:"debounce_delay"`

	// LintOnCreate also lints newly created files, not only writes.
	LintOnCreate bool `yaml:"lint_on_create"`
}

// ReportConfig configures report output.
type ReportConfig struct {
	Format string `yaml:"format"` // text, json
	Color  bool   `yaml:"color"`

	// ReportOnSuccess prints a confirmation line when no findings exist.
	ReportOnSuccess bool `yaml:"report_on_success"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`

	// KeepRuns bounds how many runs Prune retains.
	KeepRuns int `yaml:"keep_runs"`
}

// LoggingConfig configures the categorized debug logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// LinterTimeout is how long a single linter process may run.
const LinterTimeout = 30 * time.Second

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Linters: map[string]LinterConfig{
			"flake8": {
				Module: "flake8",
				Args: []string{
					"--format=%(row)d:%(col)d:%(code)s %(text)s",
				},
			},
		},

		Python: PythonConfig{
			Interpreter: "auto",
		},

		Flake8: Flake8CompatConfig{
			UseGlobalConfig:  true,
			UseProjectConfig: true,
		},

		Watch: WatchConfig{
			DebounceDelay: "1s",
			LintOnCreate:  false,
		},

		Report: ReportConfig{
			Format:          "text",
			Color:           true,
			ReportOnSuccess: false,
		},

		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: defaultDatabasePath(),
			KeepRuns:     100,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultGlobalPath returns the path of the global config file.
func DefaultGlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flakewatch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".flakewatch", "config.yaml")
	}
	return filepath.Join(home, ".config", "flakewatch", "config.yaml")
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".flakewatch", "history.db")
	}
	return filepath.Join(home, ".cache", "flakewatch", "history.db")
}

// Load reads a single YAML config file over the defaults. A missing file
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := mergeFile(cfg, path); err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// mergeFile unmarshals path over cfg. Missing files are not an error.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ApplyEnvOverrides applies FLAKEWATCH_* environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("FLAKEWATCH_DB"); v != "" {
		c.History.DatabasePath = v
	}
	if v := os.Getenv("FLAKEWATCH_PYTHON"); v != "" {
		c.Python.Interpreter = v
	}
	if v := os.Getenv("FLAKEWATCH_MAX_LINE_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxLineLength = n
		}
	}
	if v := os.Getenv("FLAKEWATCH_FORMAT"); v != "" {
		c.Report.Format = v
	}
	if v := os.Getenv("FLAKEWATCH_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
	// NO_COLOR is honored the way most terminal tools do.
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		c.Report.Color = false
	}
}

// GetDebounceDelay returns the watch debounce delay as a duration.
func (c *Config) GetDebounceDelay() time.Duration {
	d, err := time.ParseDuration(c.Watch.DebounceDelay)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// ValidFormats lists the supported report formats.
var ValidFormats = []string{"text", "json"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validFormat := false
	for _, f := range ValidFormats {
		if c.Report.Format == f {
			validFormat = true
			break
		}
	}
	if !validFormat {
		return fmt.Errorf("invalid report format: %s (valid: %v)", c.Report.Format, ValidFormats)
	}

	if c.MaxLineLength < 0 {
		return fmt.Errorf("max_line_length must not be negative: %d", c.MaxLineLength)
	}

	enabled := 0
	for name, l := range c.Linters {
		if l.Command == "" && l.Module == "" {
			return fmt.Errorf("linter %q has neither command nor module", name)
		}
		if l.IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("no linters enabled")
	}

	return nil
}
