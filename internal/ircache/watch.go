package ircache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch loads the manifest file under name and recompiles it whenever the
// file changes, swapping the snapshot atomically. A change that fails to
// compile is logged and the previous snapshot stays live.
//
// The watcher goroutine terminates when ctx is cancelled. Watch returns
// after the initial load; an unreadable or uncompilable initial file is an
// error.
func (c *Cache) Watch(ctx context.Context, name, path string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	if err := c.loadFile(name, path, log); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ircache: watch %s: %w", path, err)
	}
	// Watch the directory, not the file: editors and atomic writers
	// replace the file, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("ircache: watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if err := c.loadFile(name, path, log); err != nil {
					log.Warn("manifest reload failed; keeping previous snapshot",
						"manifest", name,
						"path", path,
						"error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("manifest watcher error", "path", path, "error", err)
			}
		}
	}()
	return nil
}

func (c *Cache) loadFile(name, path string, log *slog.Logger) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ircache: read %s: %w", path, err)
	}

	prevHash, _ := c.Hash(name)
	diags, err := c.Load(name, string(source))
	if err != nil {
		return err
	}
	if newHash, _ := c.Hash(name); newHash != prevHash {
		log.Info("manifest loaded",
			"manifest", name,
			"hash", newHash,
			"diagnostics", len(diags))
	}
	return nil
}
