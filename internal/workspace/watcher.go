package workspace

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watcher on the registry file's directory and
// reloads the registry whenever the file changes, until ctx is
// cancelled. It calls cb (if non-nil) after each successful reload.
//
// The parent directory is watched rather than the file itself so that
// editors using write-then-rename keep triggering events. Bursts of
// events are debounced into a single reload.
func (r *Registry) Watch(ctx context.Context, logger *slog.Logger, cb func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(r.path)
	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("workspace: watching registry", slog.String("path", r.path))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("workspace: watcher stopped")
			return nil

		case <-reloadCh:
			if err := r.Reload(); err != nil {
				logger.Warn("workspace: reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("workspace: registry reloaded", slog.Int("projects", len(r.Projects())))
			if cb != nil {
				cb()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("workspace: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
