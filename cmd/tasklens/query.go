package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"tasklens/internal/query"
	"tasklens/internal/task"
	"tasklens/internal/vault"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	doneStyle     = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	highStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	lowStyle      = lipgloss.NewStyle().Faint(true)
	locationStyle = lipgloss.NewStyle().Faint(true)
)

var queryCmd = &cobra.Command{
	Use:   "query [query-file]",
	Short: "Run one query block against the vault and print the result",
	Long: `Run a query block once over the whole vault.

The query block is read from the given file, or from stdin when no file
is named. Each non-blank line is a directive (limit N, sort by <key>,
group by <key>) or a filter expression; OR splits alternatives, AND
joins atoms, and separate lines are AND-ed together.

Example:
  echo 'not done
  path includes Today
  sort by priority' | tasklens query --vault ~/notes`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		var source []byte
		if len(args) == 1 {
			source, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read query file: %w", err)
			}
		} else {
			source, err = io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read query from stdin: %w", err)
			}
		}

		store := vault.NewFileStore(settings.VaultDir)
		cache := vault.NewCache(store, &vault.CacheConfig{
			TTL:    settings.CacheTTL,
			Logger: newLogger(settings, "[vault] "),
		})

		records, err := cache.Tasks(cmd.Context())
		if err != nil {
			return err
		}

		spec := query.Compile(string(source))
		today := time.Now().Format("2006-01-02")
		result := spec.Apply(records, today)

		out := cmd.OutOrStdout()
		for _, g := range spec.Groups(result) {
			if g.Key != "" {
				fmt.Fprintln(out, headerStyle.Render(g.Key))
			}
			for _, r := range g.Records {
				fmt.Fprintln(out, formatRecord(r))
			}
		}
		fmt.Fprintf(out, "\n%d task(s)\n", len(result))
		return nil
	},
}

// formatRecord renders one task line for the terminal.
func formatRecord(r task.Record) string {
	mark := "[ ]"
	desc := r.Description
	if r.Completed {
		mark = "[x]"
		desc = doneStyle.Render(desc)
	}

	line := fmt.Sprintf("  %s %s", mark, desc)
	switch r.Priority {
	case task.PriorityHigh:
		line += " " + highStyle.Render("!high")
	case task.PriorityLow:
		line += " " + lowStyle.Render("!low")
	}
	if r.CompletedDate != "" {
		line += locationStyle.Render(" done " + r.CompletedDate)
	}
	return line + locationStyle.Render("  "+r.Address().String())
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
