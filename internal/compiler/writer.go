// internal/compiler/writer.go
package compiler

import (
	"fmt"
	"strings"
	"unicode"
)

// writer accumulates generated Rust source with four-space indent tracking.
type writer struct {
	sb     strings.Builder
	indent int
}

func (w *writer) emitLine(s string) {
	if s == "" {
		w.sb.WriteString("\n")
		return
	}
	w.sb.WriteString(strings.Repeat("    ", w.indent))
	w.sb.WriteString(s)
	w.sb.WriteString("\n")
}

func (w *writer) emitLinef(format string, args ...any) {
	w.emitLine(fmt.Sprintf(format, args...))
}

// raw splices pre-rendered lines verbatim; the fragment carries its own
// indentation.
func (w *writer) raw(s string) {
	w.sb.WriteString(s)
}

func (w *writer) incIndent() { w.indent++ }
func (w *writer) decIndent() { w.indent-- }

func (w *writer) String() string {
	return w.sb.String()
}

// rustName converts a rule-set identifier (typically UpperCamelCase or
// lowerCamelCase) to a Rust snake_case identifier. Acronym runs collapse
// into a single word: "UseFIPS" becomes "use_fips".
func rustName(name string) string {
	var out []rune
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || (unicode.IsUpper(runes[i-1]) && nextLower)) {
				out = append(out, '_')
			}
			out = append(out, unicode.ToLower(r))
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// rustString renders a Rust string literal with escaping.
func rustString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
