package risk

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchFile reloads h whenever path changes, until ctx is done. The parent
// directory is watched so editors that replace the file atomically are
// still picked up.
func (h *Holder) WatchFile(ctx context.Context, path string) error {
	if h.source == nil {
		return errors.New("risk: holder has no source")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("risk: create watcher: %w", err)
	}
	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		_ = w.Close()
		return fmt.Errorf("risk: watch %s: %w", target, err)
	}

	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := h.Reload(ctx); err != nil {
					h.logger.Error("risk lexicon reload failed; keeping previous table", "err", err, "path", target)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				h.logger.Error("risk lexicon watcher error", "err", err, "path", target)
			}
		}
	}()
	return nil
}
