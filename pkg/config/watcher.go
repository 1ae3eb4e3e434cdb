package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDelay debounces bursts of file events from editors.
const DefaultReloadDelay = 500 * time.Millisecond

// Watcher reports changes to schema files.
type Watcher struct {
	logger  zerolog.Logger
	delay   time.Duration
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// NewWatcher creates a watcher. A zero delay uses DefaultReloadDelay.
func NewWatcher(logger zerolog.Logger, delay time.Duration) *Watcher {
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	return &Watcher{
		logger:  logger.With().Str("component", "schema-watcher").Logger(),
		delay:   delay,
		pending: make(map[string]struct{}),
	}
}

// Watch watches files and directories and calls onChange with the changed
// schema files once events settle. It returns after the watch is set up;
// events are processed until ctx is done.
func (w *Watcher) Watch(ctx context.Context, paths []string, onChange func(files []string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		// Editors replace files by rename, so files are watched through
		// their directory.
		dir := abs
		if !info.IsDir() {
			dir = filepath.Dir(abs)
			files[abs] = true
		} else {
			dirs[abs] = true
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	relevant := func(name string) bool {
		if _, err := FormatFromPath(name); err != nil {
			return false
		}
		abs, err := filepath.Abs(name)
		if err != nil {
			return false
		}
		return files[abs] || dirs[filepath.Dir(abs)]
	}

	go w.processEvents(ctx, relevant, onChange)

	w.logger.Info().Int("paths", len(paths)).Msg("Started watching schema paths")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, relevant func(string) bool, onChange func([]string)) {
	defer func() { _ = w.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !relevant(event.Name) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Schema file changed")

			w.mu.Lock()
			w.pending[event.Name] = struct{}{}
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.delay, func() {
				changed := w.drain()
				if len(changed) > 0 && ctx.Err() == nil {
					onChange(changed)
				}
			})
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := make([]string, 0, len(w.pending))
	for name := range w.pending {
		changed = append(changed, name)
	}
	w.pending = make(map[string]struct{})
	sort.Strings(changed)
	return changed
}

// Close stops watching.
func (w *Watcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
