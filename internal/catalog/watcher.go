package catalog

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event kinds reported by Watch.
const (
	EventReloaded = "reloaded"
	EventRemoved  = "removed"
)

// EventCallback is called after a watcher-driven catalog change.
type EventCallback func(kind, collection string)

// settleDelay is how long a file must be quiet before it is reloaded.
const settleDelay = 200 * time.Millisecond

// Watch reloads fixture files under the catalog root as they change until
// ctx is cancelled. Bursts of events for the same file are collapsed into one
// reload. Directories created at runtime are added to the watch list.
func Watch(ctx context.Context, c *Catalog, logger *slog.Logger, cb EventCallback) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, c.root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", c.root))

	dirty := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func(path string) {
		dirty[path] = struct{}{}
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			for path := range dirty {
				c.apply(path, logger, cb)
			}
			clear(dirty)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					_ = filepath.WalkDir(ev.Name, func(p string, d fs.DirEntry, err error) error {
						if err == nil && !d.IsDir() && IsFixture(p) {
							schedule(p)
						}
						return nil
					})
					continue
				}
			}
			if !IsFixture(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			schedule(ev.Name)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// apply brings the catalog in line with the current state of path.
func (c *Catalog) apply(path string, logger *slog.Logger, cb EventCallback) {
	if _, err := os.Stat(path); err != nil {
		if name, ok := c.Remove(path); ok {
			logger.Debug("watcher: removed", slog.String("collection", name))
			if cb != nil {
				cb(EventRemoved, name)
			}
		}
		return
	}
	col, err := c.Load(path)
	if err != nil {
		logger.Warn("watcher: reload failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	logger.Debug("watcher: reloaded", slog.String("collection", col.Name))
	if cb != nil {
		cb(EventReloaded, col.Name)
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
