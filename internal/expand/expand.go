// Package expand substitutes ${...} tokens inside setting values.
//
// Setting strings may embed placeholders that are resolved against the
// lint target before the value is used:
//
//	${project}    project directory of the file being linted
//	${directory}  directory of the file being linted
//	${file}       full path of the file being linted
//	${home}       user home directory
//	${env:NAME}   value of environment variable NAME
//
// ${project} and ${directory} expansion are dependent on having a lint
// target; without one the token is left in place untouched.
package expand

import (
	"os"
	"path/filepath"
	"strings"
)

// Context carries the values tokens resolve against.
// Zero-value fields mean "not available": tokens that need them are
// left verbatim rather than expanded to an empty path.
type Context struct {
	// Project is the project root directory, if one was discovered.
	Project string

	// File is the full path of the file being linted.
	File string

	// Home is the user home directory.
	Home string

	// LookupEnv resolves ${env:NAME} tokens. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// NewContext builds a Context for a lint target. The project root is
// discovered by walking up from the file; home comes from the OS.
func NewContext(file string) Context {
	ctx := Context{LookupEnv: os.LookupEnv}

	if file != "" {
		if abs, err := filepath.Abs(file); err == nil {
			file = abs
		}
		ctx.File = file
		ctx.Project = FindProjectRoot(filepath.Dir(file))
	}

	if home, err := os.UserHomeDir(); err == nil {
		ctx.Home = home
	}

	return ctx
}

// Expand replaces all tokens in s. Unknown tokens, tokens whose context
// value is unavailable, and unterminated tokens are left verbatim.
// A literal "${" is written as "$${". Expanded values are not re-scanned.
func (c Context) Expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		// "$${" escapes a literal "${".
		if strings.HasPrefix(s[i:], "$${") {
			b.WriteString("${")
			i += 3
			continue
		}

		if !strings.HasPrefix(s[i:], "${") {
			b.WriteByte(s[i])
			i++
			continue
		}

		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			// Unterminated token, keep the rest as-is.
			b.WriteString(s[i:])
			break
		}

		token := s[i+2 : i+end]
		if value, ok := c.resolve(token); ok {
			b.WriteString(value)
		} else {
			b.WriteString(s[i : i+end+1])
		}
		i += end + 1
	}

	return b.String()
}

// ExpandAll expands every value of vs, returning a new slice.
func (c Context) ExpandAll(vs []string) []string {
	if len(vs) == 0 {
		return vs
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = c.Expand(v)
	}
	return out
}

// resolve maps a token name to its value. The second return is false
// when the token is unknown or its context value is unavailable.
func (c Context) resolve(token string) (string, bool) {
	switch token {
	case "project":
		return c.Project, c.Project != ""
	case "directory":
		if c.File == "" {
			return "", false
		}
		return filepath.Dir(c.File), true
	case "file":
		return c.File, c.File != ""
	case "home":
		return c.Home, c.Home != ""
	}

	if name, ok := strings.CutPrefix(token, "env:"); ok && name != "" {
		lookup := c.LookupEnv
		if lookup == nil {
			lookup = os.LookupEnv
		}
		// Unset variables expand to the empty string, matching shell
		// behavior, so paths like "${env:VIRTUAL_ENV}/bin" stay usable.
		value, _ := lookup(name)
		return value, true
	}

	return "", false
}
