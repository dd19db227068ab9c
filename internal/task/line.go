package task

import (
	"regexp"
	"strings"
)

// completedStripRe removes completion tags together with the whitespace
// separating them from the rest of the line.
var completedStripRe = regexp.MustCompile(`(?i)\s*\[\s*(?:completed|completion)\s*:[^\]]*\]`)

// Reconcile rewrites a task line so its completion tag agrees with the
// checkbox state: done and missing a tag gains one with today's date,
// not done and tagged loses it. The checkbox itself is left as the user
// wrote it. changed is false when the line is already consistent or is
// not a task line.
func Reconcile(line string, done bool, today string) (rewritten string, changed bool) {
	prefix, status, content, ok := prefixAndContent(line)
	if !ok {
		return line, false
	}

	hasTag := completedTagRe.MatchString(content)
	switch {
	case done && !hasTag:
		return appendTag(line, completedTag(today)), true
	case !done && hasTag:
		return composeLine(prefix, status, strings.TrimSpace(completedStripRe.ReplaceAllString(content, ""))), true
	default:
		return line, false
	}
}

// Complete rewrites a task line as completed on the given date: the
// checkbox is set, any existing completion tag is stripped and a fresh
// one is appended. ok is false when the line is not a task line.
func Complete(line, date string) (rewritten string, ok bool) {
	prefix, _, content, ok := prefixAndContent(line)
	if !ok {
		return line, false
	}

	content = strings.TrimSpace(completedStripRe.ReplaceAllString(content, ""))
	return appendTag(composeLine(prefix, "x", content), completedTag(date)), true
}

// ApplyEdit rewrites a task line with a new description, completion
// state and priority, preserving the original prefix and any created/due
// tags. A task newly marked complete is dated today; clearing completion
// drops the date. ok is false when the line is not a task line.
func ApplyEdit(line, description string, completed bool, p Priority, today string) (rewritten string, ok bool) {
	prefix, _, content, ok := prefixAndContent(line)
	if !ok {
		return line, false
	}

	date := ""
	if completed {
		if cm := completedTagRe.FindStringSubmatch(content); cm != nil {
			date = strings.TrimSpace(cm[1])
		}
		if date == "" {
			date = today
		}
	}

	status := " "
	if completed {
		status = "x"
	}

	out := composeLine(prefix, status, strings.TrimSpace(description))
	for _, tag := range keptTagRe.FindAllString(content, -1) {
		out = appendTag(out, tag)
	}
	if p != PriorityNormal && p != "" {
		out = appendTag(out, "[priority: "+string(p)+"]")
	}
	if date != "" {
		out = appendTag(out, completedTag(date))
	}
	return out, true
}

// composeLine rebuilds "prefix[c] content" with the verbatim prefix.
func composeLine(prefix, status, content string) string {
	return strings.TrimRight(prefix+"["+status+"] "+content, " ")
}

// appendTag appends a bracket tag at end-of-line, single-space separated.
func appendTag(line, tag string) string {
	return strings.TrimRight(line, " ") + " " + tag
}

func completedTag(date string) string {
	return "[completed: " + date + "]"
}
