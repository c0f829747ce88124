package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadLayered_ProjectOverGlobal(t *testing.T) {
	global := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, global, "max_line_length: 100\nignore: [E2]\n")

	root := t.TempDir()
	writeFile(t, filepath.Join(root, ProjectYAMLName), "max_line_length: 88\n")
	target := filepath.Join(root, "app.py")
	writeFile(t, target, "x = 1\n")

	cfg, err := LoadLayered(global, target)
	require.NoError(t, err)

	assert.Equal(t, 88, cfg.MaxLineLength, "project yaml wins over global")
	assert.Equal(t, []string{"E2"}, cfg.Ignore, "global keys survive when project is silent")
}

func TestLoadLayered_ProjectJSON(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ProjectJSONName), `{
		"flakewatch": {
			"linters": {
				"pylint": {
					"paths": ["${project}/source/"]
				},
				"flake8": {
					"args": ["--custom"]
				}
			},
			"ignore": ["W6"]
		}
	}`)
	target := filepath.Join(root, "app.py")
	writeFile(t, target, "x = 1\n")

	cfg, err := LoadLayered(filepath.Join(t.TempDir(), "none.yaml"), target)
	require.NoError(t, err)

	pylint, ok := cfg.Linters["pylint"]
	require.True(t, ok, "json block adds new linters")
	assert.Equal(t, []string{"${project}/source/"}, pylint.Paths, "token values stay raw until lint time")

	flake8 := cfg.Linters["flake8"]
	assert.Equal(t, []string{"--custom"}, flake8.Args, "json args replace base args")
	assert.Equal(t, "flake8", flake8.Module, "fields absent from json keep the base value")

	assert.Equal(t, []string{"W6"}, cfg.Ignore)
}

func TestLoadLayered_NoProject(t *testing.T) {
	cfg, err := LoadLayered(filepath.Join(t.TempDir(), "none.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().MaxLineLength, cfg.MaxLineLength)
}

func TestApplyFlake8Config_ProjectFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "setup.cfg"), `
[metadata]
name = demo

[flake8]
max-line-length = 79
ignore = E303, E4 ,W
exclude = *_pb2.py,build
`)
	sub := filepath.Join(root, "pkg")
	target := filepath.Join(sub, "app.py")
	writeFile(t, target, "x = 1\n")

	cfg := DefaultConfig()
	cfg.Flake8.UseGlobalConfig = false
	require.NoError(t, cfg.ApplyFlake8Config(target))

	assert.Equal(t, 79, cfg.MaxLineLength)
	assert.Equal(t, []string{"E303", "E4", "W"}, cfg.Ignore)
	assert.Equal(t, []string{"*_pb2.py", "build"}, cfg.IgnoreFiles)
}

func TestApplyFlake8Config_FirstFileWins(t *testing.T) {
	root := t.TempDir()
	// setup.cfg is searched before tox.ini, matching flake8's own order.
	writeFile(t, filepath.Join(root, "setup.cfg"), "[flake8]\nmax-line-length = 79\n")
	writeFile(t, filepath.Join(root, "tox.ini"), "[flake8]\nmax-line-length = 200\n")
	target := filepath.Join(root, "app.py")
	writeFile(t, target, "x = 1\n")

	cfg := DefaultConfig()
	cfg.Flake8.UseGlobalConfig = false
	require.NoError(t, cfg.ApplyFlake8Config(target))

	assert.Equal(t, 79, cfg.MaxLineLength)
}

func TestApplyFlake8Config_GlobalFile(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	writeFile(t, filepath.Join(xdg, "flake8"), "[flake8]\nmax-line-length = 120\nselect = E,W6\n")

	// No project files anywhere near the target.
	target := filepath.Join(t.TempDir(), "app.py")
	writeFile(t, target, "x = 1\n")

	cfg := DefaultConfig()
	cfg.Flake8.UseProjectConfig = false
	require.NoError(t, cfg.ApplyFlake8Config(target))

	assert.Equal(t, 120, cfg.MaxLineLength)
	assert.Equal(t, []string{"E", "W6"}, cfg.Select)
}

func TestApplyFlake8Config_ProjectOverridesGlobal(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	writeFile(t, filepath.Join(xdg, "flake8"), "[flake8]\nmax-line-length = 120\nselect = E,W6\n")

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "setup.cfg"), "[flake8]\nmax-line-length = 79\n")
	target := filepath.Join(root, "app.py")
	writeFile(t, target, "x = 1\n")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyFlake8Config(target))

	assert.Equal(t, 79, cfg.MaxLineLength, "project key wins over the global one")
	assert.Equal(t, []string{"E", "W6"}, cfg.Select, "global keys the project is silent on survive")
}

func TestApplyFlake8Config_Disabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "setup.cfg"), "[flake8]\nmax-line-length = 79\n")
	target := filepath.Join(root, "app.py")
	writeFile(t, target, "x = 1\n")

	cfg := DefaultConfig()
	cfg.Flake8.UseGlobalConfig = false
	cfg.Flake8.UseProjectConfig = false
	require.NoError(t, cfg.ApplyFlake8Config(target))

	assert.Zero(t, cfg.MaxLineLength, "disabled compat must not read files")
}

func TestReadFlake8Section(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.cfg")
	writeFile(t, path, `
; comment
[flake8]
select: E,W
# another comment
max_line_length = 110

[other]
select = ignored
`)

	section, err := readFlake8Section(path)
	require.NoError(t, err)
	assert.Equal(t, "E,W", section["select"])
	assert.Equal(t, "110", section["max_line_length"])
	assert.NotContains(t, section, "other")
}

func TestReadFlake8Section_ContinuationLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.cfg")
	writeFile(t, path, `[flake8]
ignore =
    E203,
    W503
max-line-length = 88
`)

	section, err := readFlake8Section(path)
	require.NoError(t, err)

	list, ok := sectionList(section, "ignore")
	require.True(t, ok)
	assert.Equal(t, []string{"E203", "W503"}, list)
	assert.Equal(t, "88", section["max-line-length"], "continuation ends at the next unindented key")
}

func TestReadFlake8Section_Missing(t *testing.T) {
	section, err := readFlake8Section(filepath.Join(t.TempDir(), "nope.cfg"))
	require.NoError(t, err)
	assert.Nil(t, section)
}
