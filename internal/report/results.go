package report

import (
	"chschema/internal/migrate"
	"chschema/internal/plan"
	"chschema/internal/render"
	"fmt"
	"strings"
)

// OperationView is one planned operation with its rendered statements.
type OperationView struct {
	Type       plan.OpType    `json:"type"`
	Key        string         `json:"key"`
	Risk       plan.RiskLevel `json:"risk"`
	Statements []string       `json:"statements"`
}

func Operations(p *plan.Plan, rendered []render.Rendered) []OperationView {
	out := make([]OperationView, 0, len(p.Operations))
	for i, op := range p.Operations {
		view := OperationView{Type: op.Type, Key: op.Key, Risk: op.Risk, Statements: []string{}}
		if i < len(rendered) {
			view.Statements = rendered[i].Statements
		}
		out = append(out, view)
	}
	return out
}

type GenerateResult struct {
	DryRun            bool                    `json:"dryRun"`
	Migration         string                  `json:"migration,omitempty"`
	Location          string                  `json:"location,omitempty"`
	Snapshot          string                  `json:"snapshot,omitempty"`
	Previous          string                  `json:"previous,omitempty"`
	Risk              plan.RiskSummary        `json:"risk"`
	Operations        []OperationView         `json:"operations"`
	RenameSuggestions []plan.RenameSuggestion `json:"renameSuggestions"`
}

func (r GenerateResult) Text(s Styles) string {
	var b strings.Builder
	if len(r.Operations) == 0 {
		b.WriteString(s.Muted.Render("No schema changes.") + "\n")
		return b.String()
	}
	for _, op := range r.Operations {
		fmt.Fprintf(&b, "%-8s %s %s\n", s.Risk(op.Risk), s.Title.Render(string(op.Type)), op.Key)
	}
	fmt.Fprintf(&b, "\n%s %s\n", s.Title.Render("Risk:"), s.Summary(r.Risk))
	for _, sug := range r.RenameSuggestions {
		fmt.Fprintf(&b, "%s %s: %s -> %s (%s)\n", s.Caution.Render("possible rename"), sug.Object, sug.From, sug.To, sug.Reason)
	}
	switch {
	case r.DryRun:
		b.WriteString(s.Muted.Render("Dry run: nothing written.") + "\n")
	case r.Migration != "":
		fmt.Fprintf(&b, "%s %s\n", s.Title.Render("Migration:"), r.Location)
	}
	return b.String()
}

type StatusResult struct {
	Migrations []migrate.MigrationStatus `json:"migrations"`
	Applied    int                       `json:"applied"`
	Pending    int                       `json:"pending"`
	Drifted    int                       `json:"drifted"`
	Missing    int                       `json:"missing"`
}

func NewStatusResult(statuses []migrate.MigrationStatus) StatusResult {
	r := StatusResult{Migrations: statuses}
	if r.Migrations == nil {
		r.Migrations = []migrate.MigrationStatus{}
	}
	for _, st := range statuses {
		switch st.State {
		case migrate.StateApplied:
			r.Applied++
		case migrate.StatePending:
			r.Pending++
		case migrate.StateDrifted:
			r.Drifted++
		case migrate.StateMissing:
			r.Missing++
		}
	}
	return r
}

func (r StatusResult) Text(s Styles) string {
	var b strings.Builder
	if len(r.Migrations) == 0 {
		return s.Muted.Render("No migrations.") + "\n"
	}
	for _, m := range r.Migrations {
		state := string(m.State)
		switch m.State {
		case migrate.StateApplied:
			state = s.Safe.Render(state)
		case migrate.StatePending:
			state = s.Caution.Render(state)
		default:
			state = s.Danger.Render(state)
		}
		line := fmt.Sprintf("%-9s %s", state, m.Name)
		if m.AppliedAt != nil {
			line += " " + s.Muted.Render(m.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "\napplied=%d pending=%d drifted=%d missing=%d\n", r.Applied, r.Pending, r.Drifted, r.Missing)
	return b.String()
}

type PendingResult struct {
	Pending []migrate.PendingMigration `json:"pending"`
}

func (r PendingResult) Text(s Styles) string {
	if len(r.Pending) == 0 {
		return s.Muted.Render("Nothing to apply.") + "\n"
	}
	var b strings.Builder
	for _, m := range r.Pending {
		fmt.Fprintf(&b, "%s %s\n", s.Title.Render(m.Name), s.Summary(m.Risk))
		for _, op := range m.Destructive {
			fmt.Fprintf(&b, "  %s %s: %s\n", s.Danger.Render(op.Type), op.Key, op.Impact)
		}
	}
	b.WriteString(s.Muted.Render("Run with --execute to apply.") + "\n")
	return b.String()
}

type ExecuteResult struct {
	Applied []string `json:"applied"`
}

func (r ExecuteResult) Text(s Styles) string {
	if len(r.Applied) == 0 {
		return s.Muted.Render("Schema is up to date.") + "\n"
	}
	var b strings.Builder
	for _, name := range r.Applied {
		fmt.Fprintf(&b, "%s %s\n", s.Safe.Render("applied"), name)
	}
	return b.String()
}

type GraphResult struct {
	Format  string `json:"format"`
	Output  string `json:"output"`
	Objects int    `json:"objects"`
	Edges   int    `json:"edges"`
}

func (r GraphResult) Text(s Styles) string {
	return fmt.Sprintf("%s %s\nFormat: %s\nObjects: %d\nDependencies: %d\n",
		s.Title.Render("Dependency graph generated:"), r.Output, r.Format, r.Objects, r.Edges)
}
