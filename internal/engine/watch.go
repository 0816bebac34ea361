package engine

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher watches the parent directories of the persisted documents.
// Directories rather than files are watched because the file gateway
// replaces documents by rename.
type fileWatcher struct {
	w       *fsnotify.Watcher
	targets map[string]bool
}

func newFileWatcher(paths []string) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &fileWatcher{w: w, targets: make(map[string]bool, len(paths))}
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, err
		}
		fw.targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, err
		}
	}
	return fw, nil
}

// watch reloads state whenever another process rewrites a watched document,
// until ctx is cancelled.
func (e *Engine) watch(ctx context.Context, fw *fileWatcher) {
	defer fw.w.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !fw.targets[name] {
				continue
			}
			// Our own writes are filtered by the stores, which compare
			// against the bytes they last wrote.
			if err := e.Reload(ctx); err != nil && ctx.Err() == nil {
				e.logger.Debug("reload after external change", "path", name, "err", err)
			}

		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			e.logger.Warn("watcher error", "err", err)
		}
	}
}
