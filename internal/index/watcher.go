package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/notesync/internal/storage"
)

// rebuildDelay debounces bursts of writes to the notes file.
const rebuildDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index rebuild.
// kind is "rebuilt" and key is the storage key that triggered it.
type EventCallback func(kind string, key string)

// Watch starts an fsnotify watcher on the file-store directory and rebuilds
// the indices whenever the notes file is created, written, or replaced by
// another process. It blocks until ctx is cancelled.
func Watch(ctx context.Context, b *Builder, storeDir string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(storeDir); err != nil {
		return err
	}

	notesFile := storage.FileName(storage.KeyNotes)
	logger.Info("watcher: started", slog.String("dir", storeDir))

	var rebuildTimer *time.Timer
	var rebuildCh <-chan time.Time

	scheduleRebuild := func() {
		if rebuildTimer == nil {
			rebuildTimer = time.NewTimer(rebuildDelay)
			rebuildCh = rebuildTimer.C
		} else {
			rebuildTimer.Reset(rebuildDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rebuildTimer != nil {
				rebuildTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-rebuildCh:
			// In-process writes rebuild on their own; skip files we already indexed.
			if !b.Stale(ctx) {
				logger.Debug("watcher: notes already indexed")
				continue
			}
			if !b.Build(ctx) {
				logger.Warn("watcher: rebuild failed")
				continue
			}
			logger.Debug("watcher: indices rebuilt")
			if cb != nil {
				cb("rebuilt", storage.KeyNotes)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != notesFile {
				continue
			}
			// The file store replaces the notes file by rename, which
			// surfaces here as Create on the target.
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0 {
				scheduleRebuild()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
