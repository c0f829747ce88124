package lint

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"flakewatch/internal/config"
	"flakewatch/internal/expand"
	"flakewatch/internal/logging"
)

// Runner lints files against a layered configuration.
type Runner struct {
	cfg *config.Config
}

// NewRunner creates a Runner for the given configuration.
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{cfg: cfg}
}

// LintFile lints a single file with every enabled linter.
// A linter that cannot be started is an error; a linter exiting non-zero
// with parseable findings is not.
func (r *Runner) LintFile(ctx context.Context, path string) (*FileResult, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	result := &FileResult{File: path, Warnings: []Warning{}}
	ectx := expand.NewContext(path)

	// flake8's own config files apply per target; work on a copy so
	// concurrent lints of files in different trees do not interfere.
	cfg := *r.cfg
	if err := cfg.ApplyFlake8Config(path); err != nil {
		return nil, err
	}

	if skipped, pattern := r.skipByPattern(&cfg, path, ectx.Project); skipped {
		logging.Lint("skip %s: matches ignore_files pattern %q", path, pattern)
		result.Skipped = true
		result.SkipReason = fmt.Sprintf("matches ignore_files pattern %q", pattern)
		return result, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	source := string(data)

	if sourceSkipsLint(source) {
		logging.Lint("skip %s: file-wide noqa", path)
		result.Skipped = true
		result.SkipReason = "file-wide noqa"
		return result, nil
	}

	lines := strings.Split(source, "\n")

	for _, name := range sortedLinterNames(cfg.Linters) {
		linter := cfg.Linters[name]
		if !linter.IsEnabled() {
			continue
		}

		warnings, err := r.runLinter(ctx, &cfg, name, linter, ectx, source)
		if err != nil {
			return nil, fmt.Errorf("linter %s on %s: %w", name, path, err)
		}

		for _, w := range warnings {
			if w.Line >= 1 && w.Line <= len(lines) && lineSkipsLint(lines[w.Line-1]) {
				logging.LintDebug("drop %s at %s:%d: noqa", w.Code, path, w.Line)
				continue
			}
			w.File = path
			w.Linter = name
			result.Warnings = append(result.Warnings, w)
		}
	}

	result.Warnings = filterWarnings(result.Warnings, cfg.Select, cfg.Ignore)
	sort.Slice(result.Warnings, func(i, j int) bool {
		a, b := result.Warnings[i], result.Warnings[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		return a.Code < b.Code
	})

	logging.Lint("linted %s: %d finding(s)", path, len(result.Warnings))
	return result, nil
}

// skipByPattern checks the file's base name and project-relative path
// against ignore_files.
func (r *Runner) skipByPattern(cfg *config.Config, path, project string) (bool, string) {
	if len(cfg.IgnoreFiles) == 0 {
		return false, ""
	}

	candidates := []string{filepath.Base(path)}
	if project != "" {
		if rel, err := filepath.Rel(project, path); err == nil {
			candidates = append(candidates, rel)
		}
	}

	for _, candidate := range candidates {
		for _, pattern := range cfg.IgnoreFiles {
			if matchesIgnoreFiles(candidate, []string{pattern}) {
				return true, pattern
			}
		}
	}
	return false, ""
}

// runLinter executes one linter process and parses its findings.
func (r *Runner) runLinter(ctx context.Context, cfg *config.Config, name string, linter config.LinterConfig, ectx expand.Context, source string) ([]Warning, error) {
	ctx, cancel := context.WithTimeout(ctx, config.LinterTimeout)
	defer cancel()

	argv := buildArgv(cfg, name, linter, ectx)
	logging.LintDebug("exec %s: %v", name, argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(source)
	cmd.Env = linterEnv(linter, ectx)
	if ectx.Project != "" {
		cmd.Dir = ectx.Project
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	warnings := parseOutput(stdout.String())

	// Linters exit non-zero when they find problems; only treat the run
	// as failed when nothing parseable came back.
	if runErr != nil && len(warnings) == 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return nil, fmt.Errorf("failed to run %v: %w (%s)", argv, runErr, msg)
		}
		return nil, fmt.Errorf("failed to run %v: %w", argv, runErr)
	}

	return warnings, nil
}

// buildArgv assembles the linter command line, expanding tokens in the
// command, module-free args, and appending the stdin marker.
func buildArgv(cfg *config.Config, name string, linter config.LinterConfig, ectx expand.Context) []string {
	var argv []string
	if linter.Module != "" {
		argv = []string{cfg.Python.ResolveInterpreter(), "-m", ectx.Expand(linter.Module)}
	} else {
		argv = []string{ectx.Expand(linter.Command)}
	}

	argv = append(argv, ectx.ExpandAll(linter.Args)...)

	// Settings the default flake8 linter accepts directly.
	if name == "flake8" {
		if cfg.MaxLineLength > 0 {
			argv = append(argv, "--max-line-length="+strconv.Itoa(cfg.MaxLineLength))
		}
		if len(cfg.Builtins) > 0 {
			argv = append(argv, "--builtins="+strings.Join(cfg.Builtins, ","))
		}
	}

	// Read source from stdin.
	return append(argv, "-")
}

// linterEnv builds the subprocess environment, prepending the linter's
// expanded Paths to PYTHONPATH.
func linterEnv(linter config.LinterConfig, ectx expand.Context) []string {
	env := os.Environ()
	if len(linter.Paths) == 0 {
		return env
	}

	paths := ectx.ExpandAll(linter.Paths)
	if existing := os.Getenv("PYTHONPATH"); existing != "" {
		paths = append(paths, existing)
	}
	return append(env, "PYTHONPATH="+strings.Join(paths, string(os.PathListSeparator)))
}

// parseOutput extracts "line:col:message" findings from linter stdout.
// Unparseable lines are logged and skipped.
func parseOutput(out string) []Warning {
	var warnings []Warning
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		w, ok := parseLine(line)
		if !ok {
			logging.LintDebug("unparseable linter output: %q", line)
			continue
		}
		warnings = append(warnings, w)
	}
	return warnings
}

// parseLine parses one "line:col:CODE message" output line. flake8
// sometimes prefixes a filename ("stdin:3:1:..."); a leading non-numeric
// field is dropped.
func parseLine(s string) (Warning, bool) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) == 3 {
		if _, err := strconv.Atoi(parts[0]); err != nil {
			parts = strings.SplitN(s, ":", 4)
			if len(parts) != 4 {
				return Warning{}, false
			}
			parts = parts[1:]
		}
	}
	if len(parts) != 3 {
		return Warning{}, false
	}

	line, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Warning{}, false
	}
	col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Warning{}, false
	}

	msg := strings.TrimSpace(parts[2])
	if msg == "" {
		return Warning{}, false
	}

	code, text, _ := strings.Cut(msg, " ")
	return Warning{Line: line, Col: col, Code: code, Message: strings.TrimSpace(text)}, true
}

// LintPaths lints files and directories. Directories are walked for
// *.py files. Files are linted concurrently with bounded parallelism;
// results come back sorted by file path.
func (r *Runner) LintPaths(ctx context.Context, paths []string) ([]*FileResult, error) {
	files, err := collectFiles(paths)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []*FileResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, file := range files {
		g.Go(func() error {
			res, err := r.LintFile(gctx, file)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].File < results[j].File })
	return results, nil
}

// collectFiles expands the path arguments into a list of Python files.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if !info.IsDir() {
			add(path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				// Hidden directories (".git", ".tox", ...) are never
				// worth linting.
				if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(d.Name(), ".py") {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}

	return files, nil
}

func sortedLinterNames(linters map[string]config.LinterConfig) []string {
	names := make([]string, 0, len(linters))
	for name := range linters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
