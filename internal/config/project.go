package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"flakewatch/internal/expand"
)

// ProjectYAMLName is the per-project YAML config file name.
const ProjectYAMLName = ".flakewatch.yaml"

// ProjectJSONName is the per-project JSON settings file name.
const ProjectJSONName = ".flakewatch.json"

// projectSettings is the JSON settings block:
//
//	{
//	    "flakewatch": {
//	        "linters": {
//	            "pylint": {
//	                "paths": ["${project}/source/"]
//	            }
//	        }
//	    }
//	}
//
// Linter string values may embed ${...} tokens.
type projectSettings struct {
	Flakewatch struct {
		Linters       map[string]LinterConfig `json:"linters"`
		Select        []string                `json:"select"`
		Ignore        []string                `json:"ignore"`
		IgnoreFiles   []string                `json:"ignore_files"`
		MaxLineLength int                     `json:"max_line_length"`
	} `json:"flakewatch"`
}

// LoadLayered builds the effective configuration for a lint target:
// defaults, then the global YAML file, then the project YAML and JSON
// files found at the target's project root, then environment overrides.
// globalPath may be "" to use the default location.
func LoadLayered(globalPath, target string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath == "" {
		globalPath = DefaultGlobalPath()
	}
	if err := mergeFile(cfg, globalPath); err != nil {
		return nil, err
	}

	if target != "" {
		if root := expand.FindProjectRoot(projectSearchDir(target)); root != "" {
			if err := mergeFile(cfg, filepath.Join(root, ProjectYAMLName)); err != nil {
				return nil, err
			}
			if err := cfg.mergeProjectJSON(filepath.Join(root, ProjectJSONName)); err != nil {
				return nil, err
			}
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// projectSearchDir returns the directory to start the project root walk
// from: the target itself when it is a directory, its parent otherwise.
func projectSearchDir(target string) string {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return target
	}
	return filepath.Dir(target)
}

// mergeProjectJSON applies a .flakewatch.json settings block over cfg.
// Missing files are not an error.
func (c *Config) mergeProjectJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read project settings %s: %w", path, err)
	}

	var ps projectSettings
	if err := json.Unmarshal(data, &ps); err != nil {
		return fmt.Errorf("failed to parse project settings %s: %w", path, err)
	}

	for name, l := range ps.Flakewatch.Linters {
		base, ok := c.Linters[name]
		if !ok {
			if c.Linters == nil {
				c.Linters = make(map[string]LinterConfig)
			}
			c.Linters[name] = l
			continue
		}
		// Partial override: only fields present in the JSON replace the
		// base linter definition.
		if l.Enabled != nil {
			base.Enabled = l.Enabled
		}
		if l.Command != "" {
			base.Command = l.Command
		}
		if l.Module != "" {
			base.Module = l.Module
		}
		if l.Args != nil {
			base.Args = l.Args
		}
		if l.Paths != nil {
			base.Paths = l.Paths
		}
		c.Linters[name] = base
	}

	if ps.Flakewatch.Select != nil {
		c.Select = ps.Flakewatch.Select
	}
	if ps.Flakewatch.Ignore != nil {
		c.Ignore = ps.Flakewatch.Ignore
	}
	if ps.Flakewatch.IgnoreFiles != nil {
		c.IgnoreFiles = ps.Flakewatch.IgnoreFiles
	}
	if ps.Flakewatch.MaxLineLength > 0 {
		c.MaxLineLength = ps.Flakewatch.MaxLineLength
	}

	return nil
}
