package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// flake8ConfigFiles are the project files searched for a [flake8]
// section, in the directory of the lint target and every parent.
var flake8ConfigFiles = []string{"setup.cfg", "tox.ini", ".pep8"}

// Flake8GlobalPath returns the path of flake8's own global config file.
func Flake8GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flake8")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "flake8")
}

// ApplyFlake8Config merges settings from flake8's own config files onto
// c, honoring c.Flake8.UseGlobalConfig and UseProjectConfig. The project
// search starts at the lint target's directory and walks up.
func (c *Config) ApplyFlake8Config(target string) error {
	if !c.Flake8.UseGlobalConfig && !c.Flake8.UseProjectConfig {
		return nil
	}

	var section map[string]string

	if c.Flake8.UseGlobalConfig {
		if path := Flake8GlobalPath(); path != "" {
			s, err := readFlake8Section(path)
			if err != nil {
				return err
			}
			section = s
		}
	}

	if c.Flake8.UseProjectConfig && target != "" {
		dir, err := filepath.Abs(projectSearchDir(target))
		if err != nil {
			return fmt.Errorf("failed to resolve target %s: %w", target, err)
		}
		for {
			found := false
			for _, name := range flake8ConfigFiles {
				s, err := readFlake8Section(filepath.Join(dir, name))
				if err != nil {
					return err
				}
				if s != nil {
					// Project settings win over global ones key by key.
					if section == nil {
						section = s
					} else {
						for k, v := range s {
							section[k] = v
						}
					}
					found = true
					break
				}
			}
			if found {
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if section == nil {
		return nil
	}

	if v, ok := sectionList(section, "select"); ok {
		c.Select = v
	}
	if v, ok := sectionList(section, "ignore"); ok {
		c.Ignore = v
	}
	if v, ok := sectionList(section, "exclude"); ok {
		c.IgnoreFiles = v
	}
	if raw, ok := sectionValue(section, "max_line_length"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("flake8 config: bad max-line-length %q: %w", raw, err)
		}
		c.MaxLineLength = n
	}

	return nil
}

// sectionValue looks a key up under both underscore and dash spelling,
// the way flake8 accepts either.
func sectionValue(section map[string]string, key string) (string, bool) {
	if v, ok := section[key]; ok {
		return v, true
	}
	v, ok := section[strings.ReplaceAll(key, "_", "-")]
	return v, ok
}

func sectionList(section map[string]string, key string) ([]string, bool) {
	raw, ok := sectionValue(section, key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, false
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

// readFlake8Section reads the [flake8] section of an INI-style file into
// a key/value map. Returns (nil, nil) when the file does not exist or
// has no [flake8] section.
//
// flake8 configs are plain INI; only the subset flake8 itself writes is
// understood here (sections, key = value, key: value, # and ; comments).
func readFlake8Section(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()

	var (
		section map[string]string
		inside  bool
		lastKey string
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inside = strings.TrimSpace(line[1:len(line)-1]) == "flake8"
			lastKey = ""
			if inside && section == nil {
				section = make(map[string]string)
			}
			continue
		}

		if !inside {
			continue
		}

		// ConfigParser treats indented lines as continuations of the
		// previous value (multi-line ignore lists and the like).
		if lastKey != "" && (raw[0] == ' ' || raw[0] == '\t') {
			if prev := section[lastKey]; prev != "" {
				section[lastKey] = prev + "," + line
			} else {
				section[lastKey] = line
			}
			continue
		}

		sep := strings.IndexAny(line, "=:")
		if sep < 0 {
			continue
		}
		key := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])
		if key != "" {
			section[key] = value
			lastKey = key
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return section, nil
}
