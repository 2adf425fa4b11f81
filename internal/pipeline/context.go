package pipeline

import (
	"strings"
)

const (
	historyWindowType = "patient_history_window"
	maxContextChars   = 1500
	headerLines       = 3
	recentRecords     = 8
	matchingRecords   = 4
)

const truncationNote = "(Showing recent/relevant records for conciseness):"

// TruncatePatientHistory shrinks a patient history chunk to fit the
// generator's context window. Records are assumed most-recent-first. The
// result keeps the three header lines, the eight most recent records, and up
// to four records mentioning the requested test, deduplicated in first-seen
// order, capped at 1500 characters.
func TruncatePatientHistory(content string, metadata map[string]interface{}, testName string) string {
	docType, _ := metadata["type"].(string)
	if docType != historyWindowType || content == "" {
		if content == "" {
			return "No content available."
		}
		return content
	}

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) <= 5 {
		return content
	}

	header := lines[:headerLines]
	records := lines[headerLines:]

	recent := records
	if len(recent) > recentRecords {
		recent = recent[:recentRecords]
	}

	var matching []string
	if testName != "" {
		needle := strings.ToLower(testName)
		for _, r := range records {
			if strings.Contains(strings.ToLower(r), needle) {
				matching = append(matching, r)
				if len(matching) >= matchingRecords {
					break
				}
			}
		}
	}

	seen := make(map[string]struct{})
	var final []string
	for _, r := range append(append([]string{}, recent...), matching...) {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		final = append(final, r)
	}

	parts := append(append([]string{}, header...), truncationNote)
	parts = append(parts, final...)
	result := strings.Join(parts, "\n")

	if len(result) > maxContextChars {
		return result[:maxContextChars] + "\n... (further records truncated) ..."
	}
	return result
}
