package render

import (
	"strconv"
	"strings"
)

var (
	identEscaper  = strings.NewReplacer(`\`, `\\`, "`", "\\`", "\n", `\n`)
	stringEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
)

// QuoteIdent back-quotes an identifier.
func QuoteIdent(name string) string {
	return "`" + identEscaper.Replace(name) + "`"
}

// QuoteString single-quotes a string literal. Line breaks are escaped so a
// literal never spans lines.
func QuoteString(s string) string {
	return "'" + stringEscaper.Replace(s) + "'"
}

// Qualified quotes database.name.
func Qualified(database, name string) string {
	return QuoteIdent(database) + "." + QuoteIdent(name)
}

// qualifiedRef quotes a "db.name" reference.
func qualifiedRef(ref string) string {
	if i := strings.Index(ref, "."); i > 0 {
		return Qualified(ref[:i], ref[i+1:])
	}
	return QuoteIdent(ref)
}

// settingValue renders a setting value: numbers and already quoted
// literals are kept, anything else becomes a string literal.
func settingValue(v string) string {
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v
	}
	if len(v) >= 2 && strings.HasPrefix(v, "'") && strings.HasSuffix(v, "'") {
		return v
	}
	switch strings.ToLower(v) {
	case "true", "false":
		return v
	}
	return QuoteString(v)
}
