package task

import (
	"regexp"
	"strings"
)

// EmptyDescription is substituted when a task line has no content left
// after stripping the checkbox marker and metadata tags.
const EmptyDescription = "(no description)"

var (
	// checkboxRe matches a task line: optional list or number marker,
	// whitespace, then "[c]" where c is the single status char. Group 1
	// is the verbatim prefix up to the opening bracket, group 2 the
	// status char, group 3 the raw content after the checkbox.
	checkboxRe = regexp.MustCompile(`^(\s*(?:[-*+]|\d+[.)])?\s*)\[(.)\]\s?(.*)$`)

	// completedTagRe captures the first completion-date tag. The alias
	// key "completion" is accepted on read; writes always use
	// "completed".
	completedTagRe = regexp.MustCompile(`(?i)\[\s*(?:completed|completion)\s*:\s*([^\]]*)\]`)

	// priorityTagRe captures the first priority tag value.
	priorityTagRe = regexp.MustCompile(`(?i)\[\s*priority\s*:\s*([^\]]*)\]`)

	// metaTagRe matches any recognized metadata tag, with the
	// whitespace that separates it from surrounding text. Used to strip
	// tags out of the clean description.
	metaTagRe = regexp.MustCompile(`(?i)\s*\[\s*(?:created|completed|completion|due|priority)\s*:[^\]]*\]`)

	// keptTagRe matches tags that carry metadata the record does not
	// model (created/due); they are preserved verbatim on rewrite.
	keptTagRe = regexp.MustCompile(`(?i)\[\s*(?:created|due)\s*:[^\]]*\]`)
)

// IsTaskLine reports whether a line matches the checkbox pattern.
func IsTaskLine(line string) bool {
	return checkboxRe.MatchString(line)
}

// Status extracts the completion state of a task line without building a
// full record. ok is false when the line is not a task line.
func Status(line string) (done, ok bool) {
	m := checkboxRe.FindStringSubmatch(line)
	if m == nil {
		return false, false
	}
	return isDoneChar(m[2]), true
}

// Parse turns one raw text line into a Record. ok is false for lines
// that do not match the checkbox pattern; the returned record still
// carries the raw text and default fields so callers that skipped the
// pre-match degrade instead of failing.
func Parse(line string, lineIndex int, sourcePath string) (Record, bool) {
	rec := Record{
		RawText:    line,
		Priority:   PriorityNormal,
		SourcePath: sourcePath,
		Line:       lineIndex,
	}

	m := checkboxRe.FindStringSubmatch(line)
	if m == nil {
		rec.Description = cleanDescription(line)
		return rec, false
	}

	content := m[3]
	rec.Completed = isDoneChar(m[2])

	if cm := completedTagRe.FindStringSubmatch(content); cm != nil {
		rec.CompletedDate = strings.TrimSpace(cm[1])
	}
	if pm := priorityTagRe.FindStringSubmatch(content); pm != nil {
		rec.Priority = ParsePriority(strings.ToLower(strings.TrimSpace(pm[1])))
	}

	rec.Description = cleanDescription(content)
	return rec, true
}

func isDoneChar(c string) bool {
	return c == "x" || c == "X"
}

// cleanDescription strips every recognized metadata tag exactly once and
// substitutes a placeholder when nothing is left.
func cleanDescription(content string) string {
	desc := strings.TrimSpace(metaTagRe.ReplaceAllString(content, ""))
	if desc == "" {
		return EmptyDescription
	}
	return desc
}

// prefixAndContent splits a task line into its verbatim prefix, status
// char and raw content. ok is false for non-task lines.
func prefixAndContent(line string) (prefix, status, content string, ok bool) {
	m := checkboxRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}
