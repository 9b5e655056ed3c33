// Package strings holds small string-slice helpers shared by configuration
// parsing.
package strings

import (
	"strings"
)

// DedupeAndTrim trims whitespace from each element and drops empties and
// duplicates, preserving first-seen order. Config lists from the environment
// (broker addresses, comma-separated endpoints) pass through here so a value
// like "a, b,a," parses to ["a", "b"].
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
