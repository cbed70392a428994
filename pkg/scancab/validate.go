package scancab

import (
	"strings"
	"time"
)

// DateLayout is the wire format for document and due dates.
const DateLayout = "2006-01-02"

// ParseTags splits a comma-separated tag string into a clean tag list:
// whitespace trimmed, empties dropped, duplicates removed, order preserved.
func ParseTags(s string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}

// ValidateTags rejects tags that are empty, padded, or contain a comma (the
// wire separator). Returns a ValidationError naming the offending tag.
func ValidateTags(tags []string) error {
	seen := make(map[string]bool)
	for _, t := range tags {
		if t == "" || t != strings.TrimSpace(t) {
			return &ValidationError{Field: "tags", Msg: "tag must be non-empty with no surrounding whitespace"}
		}
		if strings.Contains(t, ",") {
			return &ValidationError{Field: "tags", Msg: "tag may not contain a comma"}
		}
		if seen[t] {
			return &ValidationError{Field: "tags", Msg: "duplicate tag " + t}
		}
		seen[t] = true
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD date string. An empty string returns nil,
// matching the clear-the-date form submission.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, &ValidationError{Field: "date", Msg: "want YYYY-MM-DD, got " + s}
	}
	return &t, nil
}
