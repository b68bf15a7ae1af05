package summarize

import (
	"regexp"
	"strings"
)

// guestPatterns implement spec.md §4.7's small heuristic for extracting a
// guest name from an episode title, tried in order.
var guestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^Ep\.?\s*\d+:\s*(.+?)\s+on\s+`),
	regexp.MustCompile(`(?i)^([^:]+):\s*`),
	regexp.MustCompile(`(?i)\bwith\s+([A-Z][\w.'-]*(?:\s+[A-Z][\w.'-]*)*)\s*$`),
}

// ExtractGuestName applies each title pattern in turn, returning the first
// non-empty match.
func ExtractGuestName(title string) string {
	for _, pattern := range guestPatterns {
		if match := pattern.FindStringSubmatch(title); len(match) > 1 {
			if name := strings.TrimSpace(match[1]); name != "" {
				return name
			}
		}
	}
	return ""
}
