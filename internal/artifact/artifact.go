// Package artifact writes and reads migration files: one header, then one
// commented block of statements per planned operation.
package artifact

import (
	"chschema/internal/plan"
	"chschema/internal/render"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	FormatVersion = 1
	Extension     = ".sql"
	Magic         = "-- chschema migration"
	timeLayout    = "20060102150405"
)

// Meta is the run-specific part of the header.
type Meta struct {
	Slug        string
	GeneratedAt time.Time
	ToolVersion string
}

type Artifact struct {
	Name     string
	Content  []byte
	Checksum string
}

// Checksum is the lowercase hex SHA-256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9_]+`)

// Slug sanitizes a human migration name to [a-z0-9_].
func Slug(name string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	s = strings.Trim(s, "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	if s == "" {
		return "migration"
	}
	return s
}

// Name returns <UTC YYYYMMDDHHMMSS>_<slug>.sql.
func Name(at time.Time, slug string) string {
	return at.UTC().Format(timeLayout) + "_" + Slug(slug) + Extension
}

// Build renders the artifact bytes. rendered must hold one entry per plan
// operation, in plan order. The output depends only on its inputs.
func Build(p *plan.Plan, rendered []render.Rendered, meta Meta) (Artifact, error) {
	if len(rendered) != len(p.Operations) {
		return Artifact{}, fmt.Errorf("rendered %d operations, plan has %d", len(rendered), len(p.Operations))
	}
	summary := plan.Summarize(p.Operations)

	var b strings.Builder
	b.WriteString(Magic + "\n")
	fmt.Fprintf(&b, "-- format: %d\n", FormatVersion)
	fmt.Fprintf(&b, "-- generated_at: %s\n", meta.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "-- tool_version: %s\n", meta.ToolVersion)
	fmt.Fprintf(&b, "-- operations: %d\n", len(p.Operations))
	fmt.Fprintf(&b, "-- risk: %s\n", summary.String())

	for i, r := range rendered {
		if r.Comment != render.CommentLine(p.Operations[i]) {
			return Artifact{}, fmt.Errorf("rendered block %d does not belong to operation %s", i, p.Operations[i].Key)
		}
		if len(r.Statements) == 0 {
			return Artifact{}, fmt.Errorf("operation %s rendered no statements", p.Operations[i].Key)
		}
		b.WriteString("\n")
		b.WriteString(r.Comment)
		b.WriteString("\n")
		for _, stmt := range r.Statements {
			stmt = strings.TrimRight(stmt, "; \n")
			if !parsesAsOne(stmt) {
				return Artifact{}, fmt.Errorf("statement of operation %s would not read back as one statement", p.Operations[i].Key)
			}
			b.WriteString(stmt)
			b.WriteString(";\n")
		}
	}

	content := []byte(b.String())
	return Artifact{
		Name:     Name(meta.GeneratedAt, meta.Slug),
		Content:  content,
		Checksum: Checksum(content),
	}, nil
}

// parsesAsOne reports whether Parse reads stmt back unchanged: no line but
// the last may end in ';' and the first may not look like a comment.
func parsesAsOne(stmt string) bool {
	lines := strings.Split(stmt, "\n")
	if strings.HasPrefix(strings.TrimSpace(lines[0]), "--") {
		return false
	}
	for _, line := range lines[:len(lines)-1] {
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			return false
		}
	}
	return true
}
