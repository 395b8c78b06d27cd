package relay

import (
	"fmt"
	"regexp"
	"strings"
)

// Redactor removes source identifiers and configured patterns from text the
// client displays, so file and source names are never shown or vocalized.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor compiles the extra patterns.
func NewRedactor(patterns []string) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Redact strips bracketed and whole-token bare occurrences of the issued identifiers and
// every configured pattern.
func (r *Redactor) Redact(text string, issued []string) string {
	if text == "" {
		return text
	}
	for _, id := range issued {
		if !strings.Contains(text, id) {
			continue
		}
		text = strings.ReplaceAll(text, "["+id+"]", "")
		text = removeIdentifier(text, id)
	}
	if r == nil {
		return text
	}
	for _, re := range r.patterns {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

// removeIdentifier drops occurrences of id that are not part of a longer token,
// so an issued "doc1" leaves "doc10" alone.
func removeIdentifier(text, id string) string {
	if id == "" {
		return text
	}
	var b strings.Builder
	start, pos := 0, 0
	for {
		i := strings.Index(text[pos:], id)
		if i < 0 {
			break
		}
		i += pos
		end := i + len(id)
		if (i == 0 || !isTokenByte(text[i-1])) && (end == len(text) || !isTokenByte(text[end])) {
			b.WriteString(text[start:i])
			start, pos = end, end
			continue
		}
		pos = i + 1
	}
	if start == 0 {
		return text
	}
	b.WriteString(text[start:])
	return b.String()
}

// isTokenByte reports whether c can continue an identifier. Non-ASCII bytes
// count so accented words are never split.
func isTokenByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '=' || c == '-':
		return true
	}
	return c >= 0x80
}
