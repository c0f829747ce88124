package lint

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flakewatch/internal/config"
	"flakewatch/internal/expand"
)

// fakeLinter writes a shell script that emits fixed findings, standing
// in for a real flake8 process.
func fakeLinter(t *testing.T, output string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake linter script requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fakelint")
	script := "#!/bin/sh\ncat >/dev/null\nprintf '%s' '" + output + "'\nexit 1\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func testRunnerConfig(command string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Linters = map[string]config.LinterConfig{
		"fake": {Command: command},
	}
	// Keep tests hermetic: never read the developer's flake8 configs.
	cfg.Flake8.UseGlobalConfig = false
	cfg.Flake8.UseProjectConfig = false
	cfg.History.Enabled = false
	return cfg
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLintFile_CollectsAndSortsWarnings(t *testing.T) {
	linter := fakeLinter(t, "5:0:W291 trailing whitespace\n3:0:E303 too many blank lines (3)\n")
	dir := t.TempDir()
	file := writeSource(t, dir, "app.py", "a = 1\nb = 2\nc = 3\nd = 4\ne = 5\n")

	r := NewRunner(testRunnerConfig(linter))
	res, err := r.LintFile(context.Background(), file)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 2)
	assert.Equal(t, "E303", res.Warnings[0].Code, "warnings sorted by line")
	assert.Equal(t, "W291", res.Warnings[1].Code)
	assert.Equal(t, res.File, res.Warnings[0].File)
	assert.Equal(t, "fake", res.Warnings[0].Linter)
	assert.False(t, res.Skipped)
}

func TestLintFile_NoqaLineDropsWarning(t *testing.T) {
	linter := fakeLinter(t, "1:0:E501 line too long\n2:0:E303 too many blank lines\n")
	dir := t.TempDir()
	file := writeSource(t, dir, "app.py", "import os  # noqa\nb = 2\n")

	r := NewRunner(testRunnerConfig(linter))
	res, err := r.LintFile(context.Background(), file)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "E303", res.Warnings[0].Code)
}

func TestLintFile_FileWideNoqa(t *testing.T) {
	linter := fakeLinter(t, "1:0:E501 line too long\n")
	dir := t.TempDir()
	file := writeSource(t, dir, "app.py", "# flake8: noqa\nimport os\n")

	r := NewRunner(testRunnerConfig(linter))
	res, err := r.LintFile(context.Background(), file)
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Empty(t, res.Warnings)
}

func TestLintFile_IgnoreFilesPattern(t *testing.T) {
	linter := fakeLinter(t, "1:0:E501 line too long\n")
	dir := t.TempDir()
	file := writeSource(t, dir, "thing_pb2.py", "x = 1\n")

	cfg := testRunnerConfig(linter)
	cfg.IgnoreFiles = []string{"*_pb2.py"}

	r := NewRunner(cfg)
	res, err := r.LintFile(context.Background(), file)
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Contains(t, res.SkipReason, "_pb2")
}

func TestLintFile_SelectIgnoreApplied(t *testing.T) {
	linter := fakeLinter(t, "1:0:E501 long\n2:0:W291 trailing\n3:0:F401 unused\n")
	dir := t.TempDir()
	file := writeSource(t, dir, "app.py", "a = 1\nb = 2\nc = 3\n")

	cfg := testRunnerConfig(linter)
	cfg.Ignore = []string{"W"}

	r := NewRunner(cfg)
	res, err := r.LintFile(context.Background(), file)
	require.NoError(t, err)

	assert.Equal(t, []string{"E501", "F401"}, warningCodes(res.Warnings))
}

func TestLintFile_BrokenLinterFails(t *testing.T) {
	dir := t.TempDir()
	file := writeSource(t, dir, "app.py", "x = 1\n")

	cfg := testRunnerConfig(filepath.Join(dir, "does-not-exist"))
	r := NewRunner(cfg)

	_, err := r.LintFile(context.Background(), file)
	assert.Error(t, err)
}

func TestLintPaths_WalksDirectories(t *testing.T) {
	linter := fakeLinter(t, "1:0:E501 long\n")
	dir := t.TempDir()
	writeSource(t, dir, "a.py", "x = 1\n")
	writeSource(t, dir, "b.py", "y = 2\n")
	writeSource(t, dir, "notes.txt", "not python\n")
	hidden := filepath.Join(dir, ".tox")
	require.NoError(t, os.MkdirAll(hidden, 0755))
	writeSource(t, hidden, "c.py", "z = 3\n")

	r := NewRunner(testRunnerConfig(linter))
	results, err := r.LintPaths(context.Background(), []string{dir})
	require.NoError(t, err)

	require.Len(t, results, 2, "only top-level .py files are linted")
	assert.Equal(t, filepath.Join(dir, "a.py"), results[0].File)
	assert.Equal(t, filepath.Join(dir, "b.py"), results[1].File)
}

func TestLintPaths_MissingPath(t *testing.T) {
	r := NewRunner(testRunnerConfig("true"))
	_, err := r.LintPaths(context.Background(), []string{filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestBuildArgv(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxLineLength = 100
	cfg.Builtins = []string{"_", "gettext"}

	ectx := expand.Context{Project: "/proj", File: "/proj/app.py", Home: "/home/dev"}

	argv := buildArgv(cfg, "flake8", cfg.Linters["flake8"], ectx)
	assert.Equal(t, cfg.Python.ResolveInterpreter(), argv[0])
	assert.Equal(t, []string{"-m", "flake8"}, argv[1:3])
	assert.Contains(t, argv, "--max-line-length=100")
	assert.Contains(t, argv, "--builtins=_,gettext")
	assert.Equal(t, "-", argv[len(argv)-1])
}

func TestBuildArgv_TokenExpansion(t *testing.T) {
	cfg := config.DefaultConfig()
	ectx := expand.Context{Project: "/proj", File: "/proj/app.py"}

	linter := config.LinterConfig{
		Command: "${project}/venv/bin/pylint",
		Args:    []string{"--rcfile=${directory}/.pylintrc"},
	}

	argv := buildArgv(cfg, "pylint", linter, ectx)
	assert.Equal(t, "/proj/venv/bin/pylint", argv[0])
	assert.Equal(t, "--rcfile=/proj/.pylintrc", argv[1])
}
