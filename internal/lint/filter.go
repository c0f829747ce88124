package lint

import (
	"path/filepath"
	"strings"

	"flakewatch/internal/logging"
)

// filterWarnings applies select and ignore code-prefix filters.
// When selectPrefixes is non-empty only matching codes survive.
// pydocstyle's D203 and D211 contradict each other, so D203 is ignored
// by default unless the user configured either one explicitly.
func filterWarnings(warnings []Warning, selectPrefixes, ignorePrefixes []string) []Warning {
	ignore := ignorePrefixes
	if !containsCode(ignore, "D203") && !containsCode(ignore, "D211") {
		ignore = append(append([]string{}, ignore...), "D203")
	}

	out := warnings[:0]
	for _, w := range warnings {
		if len(selectPrefixes) > 0 && !matchesAnyPrefix(w.Code, selectPrefixes) {
			continue
		}
		if matchesAnyPrefix(w.Code, ignore) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func matchesAnyPrefix(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// matchesIgnoreFiles reports whether any path segment of path matches
// one of the shell-style patterns, the way flake8 applies excludes.
// Invalid patterns are logged and skipped.
func matchesIgnoreFiles(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	for _, segment := range strings.Split(path, string(filepath.Separator)) {
		if segment == "" {
			continue
		}
		for _, pattern := range patterns {
			ok, err := filepath.Match(pattern, segment)
			if err != nil {
				logging.Get(logging.CategoryLint).Warn("bad ignore_files pattern %q: %v", pattern, err)
				continue
			}
			if ok {
				return true
			}
		}
	}
	return false
}
