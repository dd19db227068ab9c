// Package task defines the task record shape and the single entry point
// that turns raw document lines into structured records.
//
// All checkbox and metadata-tag pattern matching lives in this package so
// the grammar can be swapped out without touching callers.
package task

import "fmt"

// Priority is the task priority level carried in a [priority: ...] tag.
type Priority string

const (
	// PriorityHigh sorts before normal and low.
	PriorityHigh Priority = "high"
	// PriorityNormal is the default when no priority tag is present.
	PriorityNormal Priority = "normal"
	// PriorityLow sorts after high and normal.
	PriorityLow Priority = "low"
)

// ParsePriority maps a tag value to a Priority. Unrecognized values
// degrade to normal rather than failing.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s)
	default:
		return PriorityNormal
	}
}

// Weight returns the sort weight of a priority: high 3, normal 2, low 1.
// Unrecognized priorities weigh the same as normal.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// Address identifies a task by its owning document and zero-based line
// number at time of scan. It is not stable across edits that insert or
// delete lines above the task; stale addresses abort write-backs.
type Address struct {
	Path string
	Line int
}

// String returns the address as "path:line".
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Path, a.Line)
}

// Record is the structured representation of one checkbox line.
// Records are derived state: they are regenerated on every scan and never
// persisted, so two records for the same address may differ after edits.
type Record struct {
	// RawText is the full original line, preserved verbatim so the line
	// can be round-tripped back into the document.
	RawText string

	// Description is RawText with the checkbox marker removed and all
	// recognized metadata tags stripped.
	Description string

	// Completed reports whether the checkbox status char is x/X.
	Completed bool

	// CompletedDate is the verbatim value of the completion tag, if any.
	// It is opaque text; no date parsing or validation is performed.
	CompletedDate string

	// Priority defaults to normal when no priority tag is present.
	Priority Priority

	// SourcePath identifies the owning document.
	SourcePath string

	// Line is the zero-based line number within SourcePath at scan time.
	Line int
}

// Address returns the record's (path, line) identity.
func (r Record) Address() Address {
	return Address{Path: r.SourcePath, Line: r.Line}
}
