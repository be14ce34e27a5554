package parser

import (
	"regexp"
	"sort"
	"strings"
)

// ThreadPrefix prefixes every email thread identity
const ThreadPrefix = "email:"

var angleAddrRegex = regexp.MustCompile(`<([^<>]+)>`)

// ExtractEmail returns the normalized address from a header value such as
// `"Jane" <Jane@Example.com>`.
func ExtractEmail(from string) string {
	if m := angleAddrRegex.FindStringSubmatch(from); m != nil {
		return normalizeAddress(m[1])
	}
	return normalizeAddress(from)
}

// ExtractName returns the display name, or the local part when there is none.
func ExtractName(from string) string {
	if i := strings.Index(from, "<"); i > 0 {
		name := strings.TrimSpace(from[:i])
		name = strings.TrimSpace(strings.Trim(name, `"'`))
		if name != "" {
			return name
		}
	}

	addr := ExtractEmail(from)
	if at := strings.Index(addr, "@"); at > 0 {
		return addr[:at]
	}
	return addr
}

// ThreadID derives the thread identity for a pair of addresses. The result
// does not depend on argument order.
func ThreadID(a, b string) string {
	pair := []string{ExtractEmail(a), ExtractEmail(b)}
	sort.Strings(pair)
	return ThreadPrefix + strings.Join(pair, ":")
}

// FormatAddress renders an address for display.
func FormatAddress(name, email string) string {
	if name == "" {
		return "<" + email + ">"
	}
	return `"` + strings.ReplaceAll(name, `"`, `\"`) + `" <` + email + ">"
}

// ReplySubject prefixes subject with "Re: " unless it already carries it.
// fallback is used when subject is empty.
func ReplySubject(subject, fallback string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fallback
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

func normalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
