package schema

import (
	"strings"
	"unicode"
)

// CollapseWhitespace trims s and folds every run of whitespace into a single
// space. SQL comments (-- to end of line, /* ... */) count as whitespace and
// are dropped. Text inside single quotes, double quotes and backticks is
// kept verbatim, including escaped quote characters.
func CollapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var quote rune
	pendingSpace := false
	escaped := false
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			b.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		if r == '-' && i+1 < len(runes) && runes[i+1] == '-' {
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			pendingSpace = true
			continue
		}
		if r == '/' && i+1 < len(runes) && runes[i+1] == '*' {
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				i++
			}
			i++
			pendingSpace = true
			continue
		}
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		if r == '\'' || r == '"' || r == '`' {
			quote = r
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeType canonicalizes a ClickHouse type expression: whitespace is
// collapsed, removed just inside parentheses and around commas, and a single
// space follows each comma.
func NormalizeType(t string) string {
	t = CollapseWhitespace(t)
	var b strings.Builder
	b.Grow(len(t))

	var quote rune
	escaped := false
	runes := []rune(t)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			b.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"', '`':
			quote = r
			b.WriteRune(r)
		case ' ':
			prev := lastRune(b.String())
			next := rune(0)
			if i+1 < len(runes) {
				next = runes[i+1]
			}
			if prev == '(' || prev == ',' || next == ')' || next == ',' || next == '(' {
				continue
			}
			b.WriteRune(r)
		case ',':
			b.WriteString(", ")
			for i+1 < len(runes) && runes[i+1] == ' ' {
				i++
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UnwrapNullable splits Nullable(T) into T and true.
func UnwrapNullable(t string) (string, bool) {
	const prefix = "Nullable("
	if strings.HasPrefix(t, prefix) && strings.HasSuffix(t, ")") {
		return t[len(prefix) : len(t)-1], true
	}
	return t, false
}

// NormalizeEngine gives a bare engine name an empty argument list.
func NormalizeEngine(engine string) string {
	engine = NormalizeType(engine)
	if engine == "" {
		return ""
	}
	if !strings.Contains(engine, "(") {
		return engine + "()"
	}
	return engine
}

// EngineName strips the argument list from an engine expression.
func EngineName(engine string) string {
	if i := strings.Index(engine, "("); i >= 0 {
		return strings.TrimSpace(engine[:i])
	}
	return strings.TrimSpace(engine)
}

// IsMergeTreeFamily reports whether the engine supports ORDER BY, TTL,
// data-skipping indexes and table settings.
func IsMergeTreeFamily(engine string) bool {
	return strings.HasSuffix(EngineName(engine), "MergeTree")
}

// mergeTreeDefaults are settings ClickHouse applies implicitly; declaring
// them explicitly must not produce a diff.
var mergeTreeDefaults = map[string]string{
	"index_granularity": "8192",
}

// IsIdentifier reports whether expr is a bare (optionally back-quoted)
// column reference.
func IsIdentifier(expr string) bool {
	if strings.HasPrefix(expr, "`") && strings.HasSuffix(expr, "`") && len(expr) > 1 {
		return true
	}
	if expr == "" {
		return false
	}
	for i, r := range expr {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// Unquote strips surrounding backticks from an identifier.
func Unquote(ident string) string {
	if len(ident) > 1 && strings.HasPrefix(ident, "`") && strings.HasSuffix(ident, "`") {
		return strings.ReplaceAll(ident[1:len(ident)-1], "\\`", "`")
	}
	return ident
}

func lastRune(s string) rune {
	if s == "" {
		return 0
	}
	r := []rune(s)
	return r[len(r)-1]
}
