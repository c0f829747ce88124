package lint

import (
	"regexp"
	"strings"
)

// fileNoqa matches the file-wide suppression marker "# flake8: noqa".
var fileNoqa = regexp.MustCompile(`(?i)flake8[:=]\s*noqa`)

// sourceSkipsLint reports whether the whole file opts out of linting.
func sourceSkipsLint(source string) bool {
	return fileNoqa.MatchString(source)
}

// lineSkipsLint reports whether a source line ends with a "# noqa"
// comment, either directly or before a trailing comment.
func lineSkipsLint(line string) bool {
	if endsWithNoqa(line) {
		return true
	}
	// "x = 1  # noqa  # explanation" also counts.
	if i := strings.LastIndex(line, " #"); i > 0 {
		return endsWithNoqa(line[:i])
	}
	return false
}

func endsWithNoqa(line string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(line)), "# noqa")
}
