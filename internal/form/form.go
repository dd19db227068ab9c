// Package form presents the task edit dialog as a terminal form. Only
// the data contract matters to the engine: description, completed and
// priority on confirm, nil on cancel.
package form

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"tasklens/internal/task"
)

// Result carries the fields the user may change on a task.
type Result struct {
	Description string
	Completed   bool
	Priority    task.Priority
}

// Edit runs the edit form pre-filled from rec. It returns nil, nil when
// the user cancels.
func Edit(rec task.Record) (*Result, error) {
	description := rec.Description
	completed := rec.Completed
	priority := string(rec.Priority)

	f := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Description").
			Value(&description),
		huh.NewSelect[string]().
			Title("Priority").
			Options(huh.NewOptions("high", "normal", "low")...).
			Value(&priority),
		huh.NewConfirm().
			Title("Completed").
			Value(&completed),
	))

	if err := f.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, nil
		}
		return nil, fmt.Errorf("edit form failed: %w", err)
	}

	return &Result{
		Description: description,
		Completed:   completed,
		Priority:    task.ParsePriority(priority),
	}, nil
}
