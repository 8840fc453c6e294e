// Package strings holds small helpers for list-valued settings.
package strings

import "strings"

// SplitList splits s on sep, trims each item and drops empty and repeated
// items. Order of first appearance is kept. An empty s yields nil.
func SplitList(s, sep string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
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
