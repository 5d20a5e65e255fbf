// Package strlist parses comma-separated settings.
package strlist

import "strings"

// Split returns the trimmed, non-empty parts of raw in first-seen order,
// dropping repeats. It returns nil for a blank input.
//
//	Split(" a, b,,a ") // []string{"a", "b"}
func Split(raw string) []string {
	return split(raw, func(s string) string { return s })
}

// SplitLower is Split with case folded, for identifiers vendors compare
// case-insensitively.
func SplitLower(raw string) []string {
	return split(raw, strings.ToLower)
}

func split(raw string, normalize func(string) string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		part = normalize(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
