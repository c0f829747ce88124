package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI in-process and returns its combined output.
// Global flag state is reset first since cobra keeps it across runs.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath = ""
	verbose = false
	noColor = false
	format = ""
	initForce = false
	expandTarget = "."
	historyLimit = 10
	reportSuccess = false
	exitCode = 0

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "flakewatch "+version)
}

func TestConfigExpandCommand(t *testing.T) {
	t.Setenv("FW_GREETING", "hello")
	dir := t.TempDir()

	out, err := execute(t, "config", "expand", "--file", dir,
		"${directory}", "--flag=${env:FW_GREETING}")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, dir, lines[0])
	assert.Equal(t, "--flag=hello", lines[1])
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "linters:")

	// Refuses to clobber without --force.
	_, err = execute(t, "config", "init", "--config", path)
	require.Error(t, err)

	_, err = execute(t, "config", "init", "--config", path, "--force")
	require.NoError(t, err)
}

func TestConfigShowCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)

	out, err := execute(t, "config", "show", "--config", path, t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "linters:")
	assert.Contains(t, out, "flake8")
}

func TestProjectRootFor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
	nested := filepath.Join(root, "pkg", "sub")
	require.NoError(t, os.MkdirAll(nested, 0755))

	target := filepath.Join(nested, "mod.py")
	require.NoError(t, os.WriteFile(target, []byte("x = 1\n"), 0644))

	assert.Equal(t, root, projectRootFor(target))
	assert.Equal(t, root, projectRootFor(nested))
}
