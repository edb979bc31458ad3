package report

import (
	"chschema/internal/errdefs"
	"chschema/internal/plan"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles are the lipgloss styles used by text output.
type Styles struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Safe    lipgloss.Style
	Caution lipgloss.Style
	Danger  lipgloss.Style
	Error   lipgloss.Style
}

// NewStyles builds styles for w; color is dropped when w is not a terminal.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Title:   r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Safe:    r.NewStyle().Foreground(lipgloss.Color("2")),
		Caution: r.NewStyle().Foreground(lipgloss.Color("3")),
		Danger:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Error:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}

// PlainStyles renders without any escape sequences.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Title: s, Muted: s, Safe: s, Caution: s, Danger: s, Error: s}
}

// Risk styles a risk level.
func (s Styles) Risk(level plan.RiskLevel) string {
	switch level {
	case plan.Safe:
		return s.Safe.Render(string(level))
	case plan.Caution:
		return s.Caution.Render(string(level))
	default:
		return s.Danger.Render(string(level))
	}
}

// Summary renders a risk summary with styled counts.
func (s Styles) Summary(sum plan.RiskSummary) string {
	return fmt.Sprintf("%s=%d %s=%d %s=%d",
		s.Safe.Render("safe"), sum.Safe,
		s.Caution.Render("caution"), sum.Caution,
		s.Danger.Render("danger"), sum.Danger)
}

func errorText(s Styles, err error, p ErrorPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", s.Error.Render("error["+p.Code+"]:"), err.Error())

	var (
		validation *errdefs.ValidationError
		mismatch   *errdefs.ChecksumMismatchError
		blocked    *errdefs.DestructiveBlockedError
		execution  *errdefs.ExecutionError
	)
	switch {
	case errors.As(err, &validation):
		for _, issue := range validation.Issues {
			fmt.Fprintf(&b, "  - %s\n", issue.String())
		}
	case errors.As(err, &mismatch):
		for _, d := range mismatch.Drifts {
			fmt.Fprintf(&b, "  - %s %s\n", d.Migration, s.Muted.Render("recorded "+short(d.Recorded)+", now "+short(d.Actual)))
		}
	case errors.As(err, &blocked):
		for _, op := range blocked.Operations {
			fmt.Fprintf(&b, "  - %s %s %s\n", s.Danger.Render(op.Type), op.Key, s.Muted.Render("("+op.Risk+")"))
			fmt.Fprintf(&b, "      reason:         %s\n", op.Reason)
			fmt.Fprintf(&b, "      impact:         %s\n", op.Impact)
			fmt.Fprintf(&b, "      recommendation: %s\n", op.Recommendation)
		}
		appliedLine(&b, s, blocked.Applied)
	case errors.As(err, &execution):
		fmt.Fprintf(&b, "  statement: %s\n", execution.Statement)
		appliedLine(&b, s, execution.Applied)
	}
	return b.String()
}

func appliedLine(b *strings.Builder, s Styles, applied []string) {
	if len(applied) == 0 {
		fmt.Fprintf(b, "%s\n", s.Muted.Render("no migrations were applied in this run"))
		return
	}
	fmt.Fprintf(b, "%s %s\n", s.Muted.Render("applied in this run:"), strings.Join(applied, ", "))
}

func short(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
