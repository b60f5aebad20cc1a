package templates

import (
	"regexp"
	"sort"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Substitute replaces {{ token }} placeholders with params[token]. Tokens
// without a parameter are left verbatim, braces included.
func Substitute(text string, params map[string]string) string {
	if len(params) == 0 || !strings.Contains(text, "{{") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		token := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := params[token]; ok {
			return v
		}
		return match
	})
}

// Placeholders returns the distinct tokens used in texts, sorted.
func Placeholders(texts ...string) []string {
	seen := make(map[string]bool)
	for _, text := range texts {
		for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
			seen[m[1]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for token := range seen {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}
