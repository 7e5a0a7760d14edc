package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/redline-docs/redline/internal/store"
)

// Watch ingests PDFs dropped into the given directories until ctx is
// cancelled. Writes are debounced so a file still being copied is not
// registered half-written.
func Watch(ctx context.Context, st store.Store, dirs []string, meta map[string]string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
		// Subdirectories hold collections; watch them too.
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				if err := watcher.Add(filepath.Join(dir, e.Name())); err != nil {
					return err
				}
			}
		}
	}
	logger.Info("watching for documents", "dirs", dirs)

	// pending maps path -> last write time; settled files get ingested.
	pending := make(map[string]time.Time)
	const settle = 2 * time.Second
	ticker := time.NewTicker(settle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
					continue
				}
			}
			if !isPDF(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				if _, err := Run(ctx, st, Request{Paths: []string{path}, Meta: meta, Logger: logger}); err != nil {
					logger.Warn("ingest failed", "path", path, "error", err)
				}
			}
		}
	}
}
