// Package lint runs external Python linters over files and filters
// their findings.
package lint

import "fmt"

// Severity classes findings by error code family.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityCritical
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityError:
		return "error"
	default:
		return "warning"
	}
}

// Warning is one linter finding. Line is 1-based, Col 0-based, matching
// the flake8 output convention.
type Warning struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Linter  string `json:"linter"`
}

// Severity derives the severity from the code family: pyflakes (F) and
// syntax errors (E9) are critical, other pycodestyle errors (E) are
// errors, everything else is a warning.
func (w Warning) Severity() Severity {
	if len(w.Code) == 0 {
		return SeverityWarning
	}
	switch {
	case w.Code[0] == 'F':
		return SeverityCritical
	case len(w.Code) >= 2 && w.Code[0] == 'E' && w.Code[1] == '9':
		return SeverityCritical
	case w.Code[0] == 'E':
		return SeverityError
	default:
		return SeverityWarning
	}
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d:%d: %s %s", w.File, w.Line, w.Col, w.Code, w.Message)
}

// FileResult holds the outcome of linting one file.
type FileResult struct {
	File       string    `json:"file"`
	Skipped    bool      `json:"skipped,omitempty"`
	SkipReason string    `json:"skip_reason,omitempty"`
	Warnings   []Warning `json:"warnings"`
}
