// Package splitter partitions a blob of extracted text into per-student
// segments. Multi-student scans (a stack of pages digitised into one PDF or
// image) arrive as a single text block; the delimiter heuristic below is
// best-effort and makes no guarantee that a segment really is one student.
package splitter

import (
	"regexp"
	"strings"
)

// delimiterLine matches a line that marks the start of a new student
// segment: a "Student:" or "Name:" label (the student's name may follow on
// the same line), a "Page <n>" page-break marker standing alone, or a run of
// four or more dashes standing alone. Matching is case-insensitive.
var delimiterLine = regexp.MustCompile(`(?mi)^[ \t]*(?:(?:student|name):[^\n]*|page[ \t]+\d+[ \t]*|-{4,}[ \t]*)$`)

// Split partitions extracted text into per-student segments. Each delimiter
// line is kept as the head of the segment it introduces; text before the
// first delimiter belongs to no student and is not emitted as a segment of
// its own. When fewer than two non-empty segments result, the whole trimmed
// input is returned as a single segment so that single-student documents,
// including any text preceding a lone delimiter, pass through untouched.
func Split(text string) []string {
	matches := delimiterLine.FindAllStringIndex(text, -1)

	var segments []string
	for i, match := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		if segment := strings.TrimSpace(text[match[0]:end]); segment != "" {
			segments = append(segments, segment)
		}
	}

	if len(segments) < 2 {
		return []string{strings.TrimSpace(text)}
	}

	return segments
}
