package view

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"tasklens/internal/task"
)

// composeLocked builds the rendered text and its content hash from the
// current result, overlaying live grace-period state on the checkbox.
// changed is false when the hash matches the last render, in which case
// the caller must skip the render entirely: two renders over unchanged
// data produce exactly one output mutation.
//
// The hash covers address, displayed completion, description and
// priority per task, the fields a reader can see. Callers hold v.mu.
func (v *View) composeLocked() (content string, changed bool) {
	h := sha256.New()
	var b strings.Builder

	if v.name != "" {
		fmt.Fprintf(&b, "# %s\n", v.name)
	}

	for _, g := range v.spec.Groups(v.current) {
		if g.Key != "" {
			fmt.Fprintf(&b, "## %s\n", g.Key)
		}
		for _, r := range g.Records {
			done := r.Completed
			if _, ok := v.pending[r.Address()]; ok {
				done = true
			}

			mark := " "
			if done {
				mark = "x"
			}
			fmt.Fprintf(&b, "[%s] %s", mark, r.Description)
			if r.Priority != task.PriorityNormal {
				fmt.Fprintf(&b, "  !%s", r.Priority)
			}
			fmt.Fprintf(&b, "  (%s)\n", r.Address())

			fmt.Fprintf(h, "%s\x1f%t\x1f%s\x1f%s\x1e", r.Address(), done, r.Description, r.Priority)
		}
	}

	hash := hex.EncodeToString(h.Sum(nil))
	if hash == v.lastHash {
		return "", false
	}
	v.lastHash = hash
	return b.String(), true
}
