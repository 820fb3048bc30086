package admit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 500 * time.Millisecond

// WatchRules reloads path into store whenever the file changes, until ctx
// is done. The parent directory is watched so editors that save by rename
// are picked up. A file that fails to parse leaves the previous rules active.
func WatchRules(ctx context.Context, path string, store *RuleStore, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = defaultReloadDebounce
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("admit rules: create dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("admit rules: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Debug("admit rules watcher close failed", "error", err)
		}
	}()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("admit rules: watch %s: %w", dir, err)
	}
	slog.Info("admit rules watching", "file", path)

	target := filepath.Clean(path)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("admit rules watcher error", "error", err)
		case <-timer.C:
			rules, err := LoadRules(path)
			if err != nil {
				slog.Warn("admit rules reload failed, keeping previous rules", "file", path, "error", err)
				continue
			}
			store.Set(rules)
			slog.Info("admit rules reloaded", "file", path, "rules", len(rules))
		}
	}
}
