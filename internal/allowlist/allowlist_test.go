package allowlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		patterns []string
		want     bool
	}{
		{"empty list allows", "a@b.com", nil, true},
		{"wildcard allows", "anyone@anywhere.org", []string{"*"}, true},
		{"domain suffix", "a@b.com", []string{"@b.com"}, true},
		{"other domain", "a@b.com", []string{"@c.com"}, false},
		{"exact", "jane@example.com", []string{"jane@example.com"}, true},
		{"case and spaces", "  Jane@Example.COM ", []string{" JANE@example.com"}, true},
		{"substring", "jane.doe@x.com", []string{"doe"}, true},
		{"substring is broad", "johndoechicago@y.com", []string{"doe"}, true},
		{"no match", "bob@x.com", []string{"alice@x.com", "@y.com"}, false},
		{"second pattern matches", "bob@y.com", []string{"alice@x.com", "@y.com"}, true},
		{"blank pattern ignored", "bob@x.com", []string{"  "}, false},
		{"empty pattern ignored", "bob@x.com", []string{""}, false},
		{"domain pattern is not a substring", "a@b.com.evil.org", []string{"@b.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.address, tt.patterns))
		})
	}
}

func TestMatches_EmptyAndWildcardAlwaysAllow(t *testing.T) {
	for _, addr := range []string{"", "x", "a@b.com", "UPPER@CASE.IO"} {
		assert.True(t, Matches(addr, []string{}), addr)
		assert.True(t, Matches(addr, []string{Wildcard}), addr)
	}
}
