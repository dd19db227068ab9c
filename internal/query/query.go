// Package query compiles query block text into an executable
// filter/sort/group/limit specification over task records.
//
// The grammar is line-oriented: each non-blank line is either a
// directive (limit, sort by, group by) or a filter expression. OR splits
// a filter line into alternatives, AND splits an alternative into atoms,
// and separate filter lines are AND-ed together. Atoms that match no
// known pattern evaluate to true, so a malformed query line degrades to
// "show everything" instead of hiding all tasks. That fail-open policy
// is a product decision; do not tighten it here.
package query

import (
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"tasklens/internal/task"
)

// SortKey selects the comparator applied after filtering.
type SortKey string

const (
	SortNone        SortKey = ""
	SortPriority    SortKey = "priority"
	SortPath        SortKey = "path"
	SortDescription SortKey = "description"
	SortDate        SortKey = "date"
)

// GroupKey selects how result groups are keyed.
type GroupKey string

const (
	GroupNone     GroupKey = ""
	GroupFilename GroupKey = "filename"
	GroupPath     GroupKey = "path"
)

// atom is one filter predicate. today is the caller's current date
// string, needed only by "done today".
type atom func(r task.Record, today string) bool

// alternative is a conjunction of atoms; a filter line is a disjunction
// of alternatives.
type alternative []atom

// Spec is the compiled result of interpreting one query block.
type Spec struct {
	filters []([]alternative)

	Sort  SortKey
	Group GroupKey

	// Limit caps the result after filter and sort; negative means none.
	Limit int
}

var (
	orSplitRe  = regexp.MustCompile(`(?i)\s+OR\s+`)
	andSplitRe = regexp.MustCompile(`(?i)\s+AND\s+`)
)

// Compile interprets a query block. It never fails: unrecognized
// directives are ignored and unrecognized atoms compile to true.
func Compile(source string) *Spec {
	s := &Spec{Limit: -1}

	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s.compileDirective(line) {
			continue
		}

		var alts []alternative
		for _, altText := range orSplitRe.Split(line, -1) {
			var alt alternative
			for _, atomText := range andSplitRe.Split(altText, -1) {
				alt = append(alt, compileAtom(atomText))
			}
			alts = append(alts, alt)
		}
		s.filters = append(s.filters, alts)
	}
	return s
}

// compileDirective handles limit/sort/group lines. It reports true when
// the line was consumed as a directive, including directives with
// unrecognized keys, which are silently dropped.
func (s *Spec) compileDirective(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.HasPrefix(lower, "limit "):
		n, err := strconv.Atoi(strings.TrimSpace(line[len("limit "):]))
		if err == nil && n >= 0 {
			s.Limit = n
		}
		return true

	case strings.HasPrefix(lower, "sort by "):
		switch strings.TrimSpace(lower[len("sort by "):]) {
		case "priority":
			s.Sort = SortPriority
		case "path":
			s.Sort = SortPath
		case "description", "alphabet":
			s.Sort = SortDescription
		case "date":
			s.Sort = SortDate
		}
		return true

	case strings.HasPrefix(lower, "group by "):
		switch strings.TrimSpace(lower[len("group by "):]) {
		case "filename":
			s.Group = GroupFilename
		case "path":
			s.Group = GroupPath
		}
		return true
	}
	return false
}

// compileAtom maps one atom string to its predicate.
func compileAtom(text string) atom {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	switch lower {
	case "not done":
		return func(r task.Record, _ string) bool { return !r.Completed }
	case "done", "is done":
		return func(r task.Record, _ string) bool { return r.Completed }
	case "done today":
		return func(r task.Record, today string) bool {
			return r.Completed && r.CompletedDate == today
		}
	}

	switch {
	case strings.HasPrefix(lower, "path includes "):
		sub := strings.ToLower(strings.TrimSpace(text[len("path includes "):]))
		return func(r task.Record, _ string) bool {
			return strings.Contains(strings.ToLower(r.SourcePath), sub)
		}

	case strings.HasPrefix(lower, "tag includes "):
		sub := strings.ToLower(strings.TrimSpace(text[len("tag includes "):]))
		return func(r task.Record, _ string) bool {
			return strings.Contains(strings.ToLower(r.RawText), sub)
		}

	case strings.HasPrefix(lower, "priority is not "):
		level := task.ParsePriority(strings.TrimSpace(lower[len("priority is not "):]))
		return func(r task.Record, _ string) bool { return r.Priority != level }

	case strings.HasPrefix(lower, "priority is "):
		level := task.ParsePriority(strings.TrimSpace(lower[len("priority is "):]))
		return func(r task.Record, _ string) bool { return r.Priority == level }
	}

	// Unknown atoms never exclude a task.
	return func(task.Record, string) bool { return true }
}

// Match reports whether the record passes every filter line. The
// predicate is total: it returns a boolean for every record.
func (s *Spec) Match(r task.Record, today string) bool {
	for _, alts := range s.filters {
		lineOK := false
		for _, alt := range alts {
			altOK := true
			for _, a := range alt {
				if !a(r, today) {
					altOK = false
					break
				}
			}
			if altOK {
				lineOK = true
				break
			}
		}
		if !lineOK {
			return false
		}
	}
	return true
}

// Apply runs the full filter, sort and limit pipeline, preserving input
// order wherever no comparator distinguishes two records.
func (s *Spec) Apply(records []task.Record, today string) []task.Record {
	var out []task.Record
	for _, r := range records {
		if s.Match(r, today) {
			out = append(out, r)
		}
	}

	switch s.Sort {
	case SortPriority:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Priority.Weight() > out[j].Priority.Weight()
		})
	case SortPath:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].SourcePath < out[j].SourcePath
		})
	case SortDescription:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Description < out[j].Description
		})
	case SortDate:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CompletedDate < out[j].CompletedDate
		})
	}

	if s.Limit >= 0 && len(out) > s.Limit {
		out = out[:s.Limit]
	}
	return out
}

// Group is one keyed bucket of an already filtered and sorted result.
type Group struct {
	Key     string
	Records []task.Record
}

// Groups buckets records by the spec's group key, preserving first-seen
// key order. Without a group directive the whole result is one unkeyed
// group.
func (s *Spec) Groups(records []task.Record) []Group {
	if s.Group == GroupNone {
		return []Group{{Records: records}}
	}

	index := make(map[string]int)
	var out []Group
	for _, r := range records {
		key := s.groupKeyFor(r)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Group{Key: key})
		}
		out[i].Records = append(out[i].Records, r)
	}
	return out
}

// groupKeyFor derives the group key: the last path segment by default,
// the full path under "group by path", with the .md suffix stripped
// either way.
func (s *Spec) groupKeyFor(r task.Record) string {
	key := r.SourcePath
	if s.Group == GroupFilename {
		key = path.Base(key)
	}
	return strings.TrimSuffix(key, ".md")
}
