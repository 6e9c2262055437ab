package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/javainthinking/skillspick/internal/logger"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// WatchFile calls onChange after path is written, created or renamed into
// place, at most once per debounce window. The parent directory is watched
// so atomic replace-by-rename is seen. It blocks until ctx is done.
func WatchFile(ctx context.Context, path string, debounce time.Duration, onChange func(), log logger.Logger) error {
	if log == nil {
		log = logger.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if addErr := watcher.Add(filepath.Dir(abs)); addErr != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), addErr)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("Config file changed", logger.String("file", abs), logger.String("op", event.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, onChange)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Config watcher error", logger.Error(watchErr))
		}
	}
}
