package controller

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RunScheduler starts a sync every interval until ctx is done. Ticks that
// arrive while a run is active are ignored.
func (c *Controller) RunScheduler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("schedule interval must be > 0, got %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.trigger(ctx, "schedule")
		}
	}
}

// Watch starts a sync whenever the media directory changes. Bursts of events
// are coalesced: a run starts once no event has arrived for WatchDebounce.
func (c *Controller) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	c.logger.Info("watching media directory", "dir", dir)

	timer := time.NewTimer(c.config.WatchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if hidden(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				// New subdirectories are watched too; errors only lose
				// events below that directory.
				if err := addTree(watcher, event.Name); err != nil {
					c.logger.Debug("not watching new entry", "path", event.Name, "error", err)
				}
			}
			timer.Reset(c.config.WatchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watch error", "error", err)

		case <-timer.C:
			c.trigger(ctx, "watch")
		}
	}
}

func (c *Controller) trigger(ctx context.Context, source string) {
	result, err := c.StartSync(ctx)
	switch {
	case err != nil:
		c.logger.Warn("triggered sync not started", "trigger", source, "error", err)
	case !result.Started:
		c.logger.Debug("triggered sync skipped, run active", "trigger", source, "run_id", result.RunID)
	default:
		c.logger.Info("sync triggered", "trigger", source, "run_id", result.RunID)
	}
}

// addTree watches root and every non-hidden directory below it
func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && hidden(path) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
