package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tasklens/internal/form"
	"tasklens/internal/task"
	"tasklens/internal/vault"
)

var editCmd = &cobra.Command{
	Use:   "edit <document> <line>",
	Short: "Edit a task's fields through the modal form",
	Long: `Open the edit form for the task at the given document path and
zero-based line number. Changes commit immediately on confirm; cancel
leaves the document untouched.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		docPath := args[0]
		lineNo, err := strconv.Atoi(args[1])
		if err != nil || lineNo < 0 {
			return fmt.Errorf("invalid line number %q", args[1])
		}

		store := vault.NewFileStore(settings.VaultDir)
		content, err := store.ReadFresh(cmd.Context(), docPath)
		if err != nil {
			return err
		}

		lines := strings.Split(content, "\n")
		if lineNo >= len(lines) {
			return fmt.Errorf("line %d out of range, %s has %d lines", lineNo, docPath, len(lines))
		}

		rec, ok := task.Parse(lines[lineNo], lineNo, docPath)
		if !ok {
			return fmt.Errorf("%s:%d is not a task line", docPath, lineNo)
		}

		result, err := form.Edit(rec)
		if err != nil {
			return err
		}
		if result == nil {
			fmt.Println("Cancelled, no changes written")
			return nil
		}

		today := time.Now().Format("2006-01-02")
		rewritten, ok := task.ApplyEdit(lines[lineNo], result.Description, result.Completed, result.Priority, today)
		if !ok {
			return fmt.Errorf("%s:%d is no longer a task line", docPath, lineNo)
		}

		if rewritten == lines[lineNo] {
			fmt.Println("No changes")
			return nil
		}

		lines[lineNo] = rewritten
		if err := store.Write(cmd.Context(), docPath, strings.Join(lines, "\n")); err != nil {
			return err
		}
		fmt.Printf("Updated %s:%d\n", docPath, lineNo)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
}
