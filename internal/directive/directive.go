// Package directive extracts inline control tokens from raw message text.
package directive

import (
	"strings"
	"unicode"
)

// Kind identifies the directive type.
type Kind int

const (
	// KindModelOverride selects a model for the channel, parsed from
	// a "!model=<name>" token.
	KindModelOverride Kind = iota
)

// Directive is one parsed control token.
type Directive struct {
	Kind  Kind
	Value string
}

// modelPrefix introduces a model override token. The identifier is the
// maximal run of non-whitespace characters following it.
const modelPrefix = "!model="

// Parse scans raw text for directives and returns them together with
// the cleaned text. Only the first well-formed "!model=" token is
// honored; the matched token plus one adjacent whitespace character is
// removed from the text. Later occurrences and malformed tokens (an
// empty identifier) are left untouched as ordinary text. Parse never
// fails.
func Parse(raw string) ([]Directive, string) {
	start := 0
	for {
		idx := strings.Index(raw[start:], modelPrefix)
		if idx < 0 {
			return nil, raw
		}
		idx += start

		value := identifier(raw[idx+len(modelPrefix):])
		if value == "" {
			// Malformed token: keep scanning past it.
			start = idx + len(modelPrefix)
			continue
		}

		end := idx + len(modelPrefix) + len(value)
		cleaned := removeToken(raw, idx, end)
		return []Directive{{Kind: KindModelOverride, Value: value}}, cleaned
	}
}

// identifier returns the leading run of non-whitespace characters.
func identifier(s string) string {
	end := strings.IndexFunc(s, unicode.IsSpace)
	if end < 0 {
		return s
	}
	return s[:end]
}

// removeToken cuts raw[start:end] plus exactly one adjacent whitespace
// character, preferring the one after the token, to avoid leaving a
// double space behind.
func removeToken(raw string, start, end int) string {
	if end < len(raw) && isSpaceByte(raw[end]) {
		end++
	} else if start > 0 && isSpaceByte(raw[start-1]) {
		start--
	}
	return raw[:start] + raw[end:]
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
