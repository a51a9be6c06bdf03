// Package llmjson turns free-form model output into validated values. Raw
// text goes through an ordered list of normalization passes until one of the
// candidates decodes; the decoded value is then checked against its schema.
package llmjson

import (
	"strings"
)

// Pass is one normalization step applied to a decode candidate.
type Pass struct {
	Name  string
	Apply func(string) string
}

// DefaultPasses is the normalization order used by Parse. Each pass receives
// the output of the previous one.
var DefaultPasses = []Pass{
	{Name: "trim_space", Apply: TrimSpace},
	{Name: "strip_bom", Apply: StripBOM},
	{Name: "strip_fences", Apply: StripFences},
	{Name: "trim_to_braces", Apply: TrimToBraces},
	{Name: "strip_trailing_commas", Apply: StripTrailingCommas},
}

// TrimSpace removes surrounding whitespace.
func TrimSpace(text string) string {
	return strings.TrimSpace(text)
}

// StripBOM drops a leading byte order mark and zero-width characters.
func StripBOM(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	return strings.Trim(text, "\u200b\u200c\u200d\ufeff \t\r\n")
}

// StripFences removes leading and trailing code fence markers, repeatedly,
// so nested or doubled fences are peeled as well.
func StripFences(text string) string {
	for {
		trimmed := strings.TrimSpace(text)
		next := trimmed
		if strings.HasPrefix(next, "```") {
			next = strings.TrimPrefix(next, "```")
			// Drop the info string (json, JSON, html ...) up to the first newline.
			if idx := strings.IndexAny(next, "\n{["); idx >= 0 && !strings.ContainsAny(next[:idx], "{}[]\"") {
				next = next[idx:]
			}
		}
		next = strings.TrimSpace(next)
		if strings.HasSuffix(next, "```") {
			next = strings.TrimSuffix(next, "```")
		}
		next = strings.TrimSpace(next)
		if next == trimmed {
			return next
		}
		text = next
	}
}

// TrimToBraces drops any prose before the first opening brace and after the
// last closing brace.
func TrimToBraces(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}

// StripTrailingCommas removes commas directly preceding a closing brace or
// bracket outside of string literals.
func StripTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(text) && strings.IndexByte(" \t\r\n", text[j]) >= 0 {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
