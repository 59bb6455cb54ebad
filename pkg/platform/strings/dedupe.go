// Package strings normalizes identifier lists: DIDs, credential hashes,
// broker addresses and trusted issuer keys.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops blanks and repeats, keeping the
// first occurrence. A nil or empty input is returned unchanged.
//
//	DedupeAndTrim([]string{"  did:a ", "did:b", "did:a", "", "  "})
//	// []string{"did:a", "did:b"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if _, dup := seen[v]; dup || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList parses a comma separated list such as "a:9092, b:9092,a:9092".
// It returns nil when nothing but separators and blanks remain.
func SplitList(s string) []string {
	out := DedupeAndTrim(strings.Split(s, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}

// ToSet returns the normalized values as a membership set.
func ToSet(values []string) map[string]struct{} {
	normalized := DedupeAndTrim(values)
	set := make(map[string]struct{}, len(normalized))
	for _, v := range normalized {
		set[v] = struct{}{}
	}
	return set
}
