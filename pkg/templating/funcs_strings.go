package templating

import (
	"strings"
	"unicode"
)

// title upper-cases the first letter of each space-separated word.
func title(s string) string {
	prev := ' '
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(prev) {
			prev = r
			return unicode.ToUpper(r)
		}
		prev = r
		return r
	}, s)
}

// trimPrefix removes the prefix from s if present. The prefix comes first so
// the string can arrive through a pipeline.
func trimPrefix(prefix, s string) string {
	return strings.TrimPrefix(s, prefix)
}

// trimSuffix removes the suffix from s if present.
func trimSuffix(suffix, s string) string {
	return strings.TrimSuffix(s, suffix)
}

// replace substitutes all occurrences of old with new in s.
func replace(old, new, s string) string {
	return strings.ReplaceAll(s, old, new)
}

// split breaks s around each instance of sep.
func split(sep, s string) []string {
	return strings.Split(s, sep)
}

// join concatenates the elements with sep between them.
func join(sep string, elems []string) string {
	return strings.Join(elems, sep)
}

// truncate cuts s to at most n runes. The limit is capped by the configured
// MaxTruncateLen.
func (tm *TemplateManager) truncate(n int, s string) string {
	if n > tm.config.MaxTruncateLen {
		n = tm.config.MaxTruncateLen
	}
	if n < 0 {
		n = 0
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// indent prefixes every line of s with n spaces, capped by MaxIndent.
func (tm *TemplateManager) indent(n int, s string) string {
	if n > tm.config.MaxIndent {
		n = tm.config.MaxIndent
	}
	if n < 0 {
		n = 0
	}
	pad := strings.Repeat(" ", n)
	return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
}
