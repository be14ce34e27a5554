package parser

import (
	"regexp"
	"strings"
)

var replyMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^On .+ wrote:$`),
	regexp.MustCompile(`(?i)^Le .+ a écrit ?:$`),
	regexp.MustCompile(`(?i)^Am .+ schrieb .+:$`),
	regexp.MustCompile(`寫道[：:]\s*$`),
	regexp.MustCompile(`^>`),
	regexp.MustCompile(`^-{5,}`),
	regexp.MustCompile(`^_{5,}`),
	regexp.MustCompile(`^From:.*<.*@.*>`),
	regexp.MustCompile(`^Sent from my`),
}

// StripQuotedReplies removes quoted history from a reply body.
//
// Lines starting with ">" are always dropped. Any other non-blank line counts
// as content, including a marker line itself, and from then on the first
// reply marker ends the body. A body that opens with a marker therefore
// strips to nothing, and the original text is returned with its quote lines
// removed.
func StripQuotedReplies(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	foundContent := false

	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")

		if strings.TrimSpace(line) != "" && !isQuoteLine(line) {
			foundContent = true
		}
		if foundContent && isReplyMarker(line) {
			break
		}
		if isQuoteLine(line) {
			continue
		}
		kept = append(kept, line)
	}

	if cleaned := strings.TrimSpace(strings.Join(kept, "\n")); cleaned != "" {
		return cleaned
	}

	fallback := make([]string, 0, len(lines))
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if !isQuoteLine(line) {
			fallback = append(fallback, line)
		}
	}
	return strings.TrimSpace(strings.Join(fallback, "\n"))
}

func isQuoteLine(line string) bool {
	return strings.HasPrefix(line, ">")
}

func isReplyMarker(line string) bool {
	for _, re := range replyMarkers {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
