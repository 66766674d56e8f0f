package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/orderpilot/orderpilot/pkg/config"
)

func newWatchCommand() *cobra.Command {
	var (
		doneDir   string
		failedDir string
		settle    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <drop-dir>",
		Short: "Watch a directory and submit dropped order files",
		Long: `Watch monitors a directory for new .cue order files and submits each one
as it appears. Processed files are moved to the done directory, failed
ones to the failed directory, so a crash never re-submits an order.`,
		Example: `  orderpilot watch /srv/orders/incoming
  orderpilot watch --done /srv/orders/done --failed /srv/orders/failed /srv/orders/incoming`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dropDir := args[0]
			if doneDir == "" {
				doneDir = filepath.Join(dropDir, "done")
			}
			if failedDir == "" {
				failedDir = filepath.Join(dropDir, "failed")
			}
			for _, dir := range []string{doneDir, failedDir} {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return err
				}
			}

			a, err := newApp(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()
			if err := watcher.Add(dropDir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dropDir, err)
			}

			// Files already present are processed first; the watcher only
			// reports changes from now on.
			entries, err := os.ReadDir(dropDir)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".cue") {
					processDropped(ctx, a, filepath.Join(dropDir, entry.Name()), doneDir, failedDir)
				}
			}

			a.logger.WithField("dir", dropDir).Info("watching for order files")
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
						continue
					}
					if !strings.HasSuffix(event.Name, ".cue") {
						continue
					}
					// Writers rarely drop files atomically; give the write a
					// moment to finish.
					time.Sleep(settle)
					processDropped(ctx, a, event.Name, doneDir, failedDir)
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					a.logger.WithError(err).Warn("watcher error")
				}
			}
		},
	}

	cmd.Flags().StringVar(&doneDir, "done", "", "directory for submitted order files (default <drop-dir>/done)")
	cmd.Flags().StringVar(&failedDir, "failed", "", "directory for failed order files (default <drop-dir>/failed)")
	cmd.Flags().DurationVar(&settle, "settle", 500*time.Millisecond, "delay before reading a newly dropped file")

	return cmd
}

func processDropped(ctx context.Context, a *app, path, doneDir, failedDir string) {
	logger := a.logger.WithField("file", path)
	logger.Info("processing order file")

	order, err := config.NewOrderParser().ParseFile(path)
	if err == nil {
		err = a.checkPolicies(ctx, order)
	}
	if err == nil {
		_, err = a.builder.BuildOrder(ctx, order)
	}

	dest := filepath.Join(doneDir, filepath.Base(path))
	if err != nil {
		logger.WithError(err).Error("order submission failed")
		dest = filepath.Join(failedDir, filepath.Base(path))
	}
	if mvErr := os.Rename(path, dest); mvErr != nil {
		logger.WithError(mvErr).Error("failed to move processed order file")
	}
}
