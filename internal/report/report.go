// Package report formats lint results for the terminal and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"flakewatch/internal/config"
	"flakewatch/internal/lint"
)

// Highlight colors, carried over from the classic flake8 lint palette.
var (
	criticalColor = lipgloss.Color("#981600")
	errorColor    = lipgloss.Color("#DA2000")
	warningColor  = lipgloss.Color("#EDBA00")
	successColor  = lipgloss.Color("#8BC34A")

	fileStyle     = lipgloss.NewStyle().Bold(true)
	criticalStyle = lipgloss.NewStyle().Foreground(criticalColor).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(errorColor)
	warningStyle  = lipgloss.NewStyle().Foreground(warningColor)
	successStyle  = lipgloss.NewStyle().Foreground(successColor)
	mutedStyle    = lipgloss.NewStyle().Faint(true)
)

// Summary aggregates counts across a lint run.
type Summary struct {
	Files    int `json:"files"`
	Skipped  int `json:"skipped"`
	Critical int `json:"critical"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Total returns the number of findings of any severity.
func (s Summary) Total() int {
	return s.Critical + s.Errors + s.Warnings
}

// Summarize computes a Summary over file results.
func Summarize(results []*lint.FileResult) Summary {
	var s Summary
	for _, res := range results {
		s.Files++
		if res.Skipped {
			s.Skipped++
		}
		for _, w := range res.Warnings {
			switch w.Severity() {
			case lint.SeverityCritical:
				s.Critical++
			case lint.SeverityError:
				s.Errors++
			default:
				s.Warnings++
			}
		}
	}
	return s
}

// Writer renders lint results in the configured format.
type Writer struct {
	out io.Writer
	cfg config.ReportConfig
}

// NewWriter creates a report writer.
func NewWriter(out io.Writer, cfg config.ReportConfig) *Writer {
	return &Writer{out: out, cfg: cfg}
}

// Write renders results and returns the computed summary.
func (w *Writer) Write(results []*lint.FileResult) (Summary, error) {
	summary := Summarize(results)

	switch w.cfg.Format {
	case "json":
		return summary, w.writeJSON(results, summary)
	default:
		return summary, w.writeText(results, summary)
	}
}

// jsonReport is the stable machine-readable document.
type jsonReport struct {
	Files   []*lint.FileResult `json:"files"`
	Summary Summary            `json:"summary"`
}

func (w *Writer) writeJSON(results []*lint.FileResult, summary Summary) error {
	doc := jsonReport{Files: results, Summary: summary}
	if doc.Files == nil {
		doc.Files = []*lint.FileResult{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

func (w *Writer) writeText(results []*lint.FileResult, summary Summary) error {
	for _, res := range results {
		if res.Skipped {
			if _, err := fmt.Fprintf(w.out, "%s\n  %s\n", w.render(fileStyle, res.File),
				w.render(mutedStyle, "skipped: "+res.SkipReason)); err != nil {
				return err
			}
			continue
		}
		if len(res.Warnings) == 0 {
			continue
		}

		if _, err := fmt.Fprintln(w.out, w.render(fileStyle, res.File)); err != nil {
			return err
		}
		for _, warning := range res.Warnings {
			line := fmt.Sprintf("  %d:%d  %s  %s",
				warning.Line, warning.Col,
				w.render(w.severityStyle(warning.Severity()), warning.Code),
				warning.Message)
			if _, err := fmt.Fprintln(w.out, line); err != nil {
				return err
			}
		}
	}

	return w.writeTextSummary(summary)
}

func (w *Writer) writeTextSummary(summary Summary) error {
	if summary.Total() == 0 {
		if !w.cfg.ReportOnSuccess {
			return nil
		}
		_, err := fmt.Fprintf(w.out, "%s %d file(s) checked, no problems found\n",
			w.render(successStyle, "ok:"), summary.Files)
		return err
	}

	_, err := fmt.Fprintf(w.out, "%d finding(s) in %d file(s): %s, %s, %s\n",
		summary.Total(), summary.Files,
		w.render(criticalStyle, fmt.Sprintf("%d critical", summary.Critical)),
		w.render(errorStyle, fmt.Sprintf("%d error(s)", summary.Errors)),
		w.render(warningStyle, fmt.Sprintf("%d warning(s)", summary.Warnings)))
	return err
}

func (w *Writer) severityStyle(severity lint.Severity) lipgloss.Style {
	switch severity {
	case lint.SeverityCritical:
		return criticalStyle
	case lint.SeverityError:
		return errorStyle
	default:
		return warningStyle
	}
}

// render applies a style unless color output is disabled.
func (w *Writer) render(style lipgloss.Style, s string) string {
	if !w.cfg.Color {
		return s
	}
	return style.Render(s)
}
