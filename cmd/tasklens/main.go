// Command tasklens maintains a query-able view of checkbox tasks spread
// across a directory of markdown documents.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"tasklens/internal/config"
)

var (
	cfgFile  string
	vaultDir string
)

var rootCmd = &cobra.Command{
	Use:   "tasklens",
	Short: "Query and synchronize checkbox tasks across markdown documents",
	Long: `tasklens scans a vault of markdown documents for checkbox task lines,
compiles query blocks into filtered/sorted/grouped views, and keeps those
views synchronized with live edits through a debounced watcher, a TTL
cache and a change broadcaster.`,
	SilenceUsage: true,
}

// loadSettings resolves settings from the config file and flags. The
// --vault flag wins over the configured vault directory.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if vaultDir != "" {
		settings.VaultDir = vaultDir
	}
	return settings, nil
}

// newLogger builds the engine logger: stderr, plus a rotating log file
// when one is configured.
func newLogger(settings *config.Settings, prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if settings.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   settings.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return log.New(w, prefix, log.LstdFlags)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default tasklens.yaml)")
	rootCmd.PersistentFlags().StringVar(&vaultDir, "vault", "", "Vault directory (overrides config)")
}
