package artifact

import (
	"bufio"
	"bytes"
	"chschema/internal/plan"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the metadata block at the top of a migration.
type Header struct {
	Format      int
	GeneratedAt time.Time
	ToolVersion string
	Operations  int
	Risk        plan.RiskSummary
}

// Block is one operation as recovered from its metadata comment.
type Block struct {
	Type       plan.OpType
	Key        string
	Risk       plan.RiskLevel
	Statements []string
}

type Migration struct {
	Name     string
	Checksum string
	Header   Header
	Blocks   []Block
}

// DangerBlocks returns the blocks tagged danger.
func (m *Migration) DangerBlocks() []Block {
	var out []Block
	for _, b := range m.Blocks {
		if b.Risk == plan.Danger {
			out = append(out, b)
		}
	}
	return out
}

// Statements returns every statement in file order.
func (m *Migration) Statements() []string {
	var out []string
	for _, b := range m.Blocks {
		out = append(out, b.Statements...)
	}
	return out
}

const operationPrefix = "-- operation: "

// Parse reads a migration using only its structured comment lines. Any
// comment it does not understand is an error.
func Parse(name string, content []byte) (*Migration, error) {
	m := &Migration{Name: name, Checksum: Checksum(content)}
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%s:%d: %s", name, lineNo, fmt.Sprintf(format, args...))
	}

	inHeader := true
	seen := make(map[string]bool)
	var current *Block
	var stmt []string

	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if inHeader {
			if lineNo == 1 {
				if trimmed != Magic {
					return nil, fail("not a migration file: first line must be %q", Magic)
				}
				continue
			}
			if trimmed == "" {
				inHeader = false
				continue
			}
			if err := parseHeaderLine(&m.Header, trimmed, seen); err != nil {
				return nil, fail("%v", err)
			}
			continue
		}

		if len(stmt) == 0 && strings.HasPrefix(trimmed, "--") {
			if !strings.HasPrefix(trimmed, operationPrefix) {
				return nil, fail("unrecognized comment line %q", trimmed)
			}
			if current != nil && len(current.Statements) == 0 {
				return nil, fail("operation %s has no statements", current.Key)
			}
			block, err := parseOperationLine(trimmed)
			if err != nil {
				return nil, fail("%v", err)
			}
			m.Blocks = append(m.Blocks, block)
			current = &m.Blocks[len(m.Blocks)-1]
			continue
		}
		if trimmed == "" && len(stmt) == 0 {
			continue
		}
		if current == nil {
			return nil, fail("statement outside of an operation block")
		}

		stmt = append(stmt, line)
		if strings.HasSuffix(trimmed, ";") {
			text := strings.TrimSuffix(strings.TrimSpace(strings.Join(stmt, "\n")), ";")
			current.Statements = append(current.Statements, text)
			stmt = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if lineNo == 0 {
		return nil, fmt.Errorf("%s: empty migration file", name)
	}
	if len(stmt) > 0 {
		return nil, fail("unterminated statement (missing ';')")
	}
	if current != nil && len(current.Statements) == 0 {
		return nil, fail("operation %s has no statements", current.Key)
	}
	for _, key := range []string{"format", "generated_at", "tool_version", "operations", "risk"} {
		if !seen[key] {
			return nil, fmt.Errorf("%s: header is missing %q", name, key)
		}
	}
	if m.Header.Format > FormatVersion {
		return nil, fmt.Errorf("%s: unsupported migration format %d", name, m.Header.Format)
	}
	if m.Header.Operations != len(m.Blocks) {
		return nil, fmt.Errorf("%s: header declares %d operations, found %d", name, m.Header.Operations, len(m.Blocks))
	}
	return m, nil
}

func parseHeaderLine(h *Header, line string, seen map[string]bool) error {
	body, ok := strings.CutPrefix(line, "-- ")
	if !ok {
		return fmt.Errorf("unrecognized header line %q", line)
	}
	key, value, ok := strings.Cut(body, ":")
	if !ok {
		return fmt.Errorf("unrecognized header line %q", line)
	}
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if seen[key] {
		return fmt.Errorf("duplicate header %q", key)
	}
	seen[key] = true

	var err error
	switch key {
	case "format":
		h.Format, err = strconv.Atoi(value)
	case "generated_at":
		h.GeneratedAt, err = time.Parse(time.RFC3339, value)
	case "tool_version":
		h.ToolVersion = value
	case "operations":
		h.Operations, err = strconv.Atoi(value)
	case "risk":
		_, err = fmt.Sscanf(value, "safe=%d caution=%d danger=%d", &h.Risk.Safe, &h.Risk.Caution, &h.Risk.Danger)
	default:
		return fmt.Errorf("unknown header %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid header %q: %w", key, err)
	}
	return nil
}

// parseOperationLine parses "-- operation: <type> key=<key> risk=<level>".
func parseOperationLine(line string) (Block, error) {
	fields := strings.Fields(strings.TrimPrefix(line, operationPrefix))
	if len(fields) != 3 {
		return Block{}, fmt.Errorf("malformed operation comment %q", line)
	}
	key, ok := strings.CutPrefix(fields[1], "key=")
	if !ok || key == "" {
		return Block{}, fmt.Errorf("malformed operation comment %q: missing key", line)
	}
	riskText, ok := strings.CutPrefix(fields[2], "risk=")
	if !ok {
		return Block{}, fmt.Errorf("malformed operation comment %q: missing risk", line)
	}
	risk, err := plan.ParseRiskLevel(riskText)
	if err != nil {
		return Block{}, fmt.Errorf("malformed operation comment %q: %w", line, err)
	}
	opType := plan.OpType(fields[0])
	// an operation type this build does not know is gated as destructive
	if !plan.Known(opType) {
		risk = plan.Danger
	}
	return Block{Type: opType, Key: key, Risk: risk}, nil
}
