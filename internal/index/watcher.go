package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/orgcal/internal/storage"
)

// settleDelay is the quiet period after the last event on a file before it
// is looked at again.
const settleDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Watch keeps the index in step with edits to the schedule directory until
// ctx is cancelled. Events are collected per file and settled once the file
// has been quiet for settleDelay: a file that is gone leaves the index, and a
// file whose checksum differs from the indexed one is indexed again. Content
// the index already holds, such as a sync run's own persist, produces no
// callback.
//
// Only the top level of the store root is watched. The schedule and its
// archive live there; anything deeper is picked up by Sync.
func Watch(ctx context.Context, db *DB, store storage.Provider, loc *time.Location, logger *slog.Logger, cb EventCallback) error {
	root := store.Root()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod || !storage.IsDocument(ev.Name) {
				continue
			}
			pending[filepath.Base(ev.Name)] = struct{}{}
			settle.Reset(settleDelay)

		case <-settle.C:
			for name := range pending {
				if kind, ok := settleFile(db, store, loc, logger, name); ok && cb != nil {
					cb(kind, name)
				}
			}
			clear(pending)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// settleFile brings the index entry for path in line with the disk and
// reports what changed. ok is false when nothing did.
func settleFile(db *DB, store storage.Provider, loc *time.Location, logger *slog.Logger, path string) (kind string, ok bool) {
	log := logger.With(slog.String("path", path))

	indexed, err := db.GetChecksum(path)
	if err != nil {
		log.Warn("watcher: checksum lookup failed", slog.String("error", err.Error()))
		return "", false
	}

	data, err := store.Read(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if indexed == "" {
			return "", false
		}
		if err := db.DeleteFile(path); err != nil {
			log.Warn("watcher: delete failed", slog.String("error", err.Error()))
			return "", false
		}
		log.Debug("watcher: deleted")
		return "deleted", true
	case err != nil:
		log.Warn("watcher: read failed", slog.String("error", err.Error()))
		return "", false
	}

	sum := storage.Checksum(data)
	if sum == indexed {
		return "", false
	}
	if err := indexFile(db, path, data, loc); err != nil {
		log.Warn("watcher: index incomplete", slog.String("error", err.Error()))
		// Skipped entries still leave the file indexed.
		if cs, _ := db.GetChecksum(path); cs != sum {
			return "", false
		}
	}

	kind = "updated"
	if indexed == "" {
		kind = "created"
	}
	log.Debug("watcher: indexed", slog.String("op", kind))
	return kind, true
}
