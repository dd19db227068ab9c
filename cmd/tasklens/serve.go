package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tasklens/internal/bus"
	"tasklens/internal/config"
	"tasklens/internal/dashboard"
	"tasklens/internal/vault"
	"tasklens/internal/view"
)

var viewsFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine: vault watcher, views and live dashboard",
	Long: `Materialize every query block in the views manifest, keep the views
synchronized with vault edits, and stream status changes and re-renders
to WebSocket clients.

The manifest is YAML:

  views:
    - name: today
      query: |
        not done
        path includes Today
        sort by priority

Connect a WebSocket client to ws://localhost:<port>/ws for the feed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		manifest, err := config.LoadManifest(viewsFile)
		if err != nil {
			return err
		}
		if len(manifest.Views) == 0 {
			return fmt.Errorf("views manifest %s defines no views", viewsFile)
		}

		store := vault.NewFileStore(settings.VaultDir)
		cache := vault.NewCache(store, &vault.CacheConfig{
			TTL:    settings.CacheTTL,
			Logger: newLogger(settings, "[vault] "),
		})
		broadcaster := bus.New()

		server := dashboard.NewServer(&dashboard.Config{
			Port:   settings.DashboardPort,
			Logger: newLogger(settings, "[dashboard] "),
		})
		server.AttachBus(broadcaster)
		if err := server.Start(); err != nil {
			return err
		}

		rescan, err := vault.NewRescanWatcher(cache, broadcaster, &vault.RescanConfig{
			Debounce: settings.Debounce,
			Settle:   settings.SettleDelay,
			Logger:   newLogger(settings, "[rescan] "),
		})
		if err != nil {
			return err
		}
		if err := rescan.Start(settings.VaultDir); err != nil {
			return err
		}

		sink := server.RenderSink()
		viewLogger := newLogger(settings, "[view] ")
		var views []*view.View
		for _, def := range manifest.Views {
			v := view.New(def.Name, def.Query, cache, store, broadcaster, sink, &view.Config{
				GraceTicks:   settings.GraceTicks,
				TickInterval: settings.TickInterval,
				SettleDelay:  settings.SettleDelay,
				Logger:       viewLogger,
			})
			if err := v.Refresh(cmd.Context()); err != nil {
				viewLogger.Printf("Initial refresh of %q failed: %v", def.Name, err)
			}
			views = append(views, v)
		}

		fmt.Printf("Serving %d view(s) over vault %s\n", len(views), settings.VaultDir)
		fmt.Printf("WebSocket feed: ws://%s/ws\n", server.Addr())
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down...")
		for _, v := range views {
			v.Close()
		}
		if err := rescan.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping rescan watcher: %v\n", err)
		}
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&viewsFile, "views", "views.yaml", "Views manifest file")
	rootCmd.AddCommand(serveCmd)
}
