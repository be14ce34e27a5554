// Package allowlist decides which senders may reach the dispatch layer.
package allowlist

import "strings"

// Wildcard matches every sender
const Wildcard = "*"

// Matches reports whether address is admitted by patterns.
//
// An empty pattern list admits everyone. Each pattern is compared in order,
// lowercased and trimmed:
//   - "*" matches any address
//   - an exact address match
//   - "@domain" matches addresses ending in that domain
//   - anything else matches as a substring of the address
//
// Blank patterns are ignored rather than matching everyone, and an "@domain"
// pattern only ever matches as a suffix, so "@b.com" rejects a@b.com.evil.org.
// "doe" therefore admits both jane.doe@x.com and johndoechicago@y.com.
func Matches(address string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	addr := strings.ToLower(strings.TrimSpace(address))
	for _, p := range patterns {
		pattern := strings.ToLower(strings.TrimSpace(p))
		if pattern == "" {
			continue
		}

		switch {
		case pattern == Wildcard:
			return true
		case addr == pattern:
			return true
		case strings.HasPrefix(pattern, "@"):
			if strings.HasSuffix(addr, pattern) {
				return true
			}
		case strings.Contains(addr, pattern):
			return true
		}
	}
	return false
}
