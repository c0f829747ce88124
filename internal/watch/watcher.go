// Package watch re-lints Python files as they are saved.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"flakewatch/internal/logging"
)

// Watcher watches a directory tree and invokes a callback for each
// changed Python file, debouncing rapid saves per path.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	root     string
	debounce time.Duration
	onCreate bool
	onChange func(path string)
	timers   map[string]*time.Timer
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool

	stats Stats
}

// Stats tracks watcher activity for debugging.
type Stats struct {
	EventsSeen     int
	LintsTriggered int
	DirsWatched    int
	Errors         int
}

// New creates a Watcher over root. onChange runs on its own goroutine
// after the debounce delay, once per burst of saves to the same file.
func New(root string, debounce time.Duration, lintOnCreate bool, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	return &Watcher{
		watcher:  fsw,
		root:     root,
		debounce: debounce,
		onCreate: lintOnCreate,
		onChange: onChange,
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; events are handled on a
// background goroutine until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		// Never entered the event loop, so doneCh will not be closed;
		// roll back so a later Stop does not wait on it.
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.watcher.Close()
		return err
	}
	logging.Watch("watching %s (%d dir(s))", w.root, w.Stats().DirsWatched)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

// Stats returns a copy of the current counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// addTree registers root and every non-hidden subdirectory.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.mu.Lock()
		w.stats.DirsWatched++
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			logging.Get(logging.CategoryWatch).Warn("watch error: %v", err)
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.mu.Lock()
	w.stats.EventsSeen++
	w.mu.Unlock()

	// New directories must be added while the tree is live.
	if event.Op.Has(fsnotify.Create) {
		if isDir(event.Name) && !strings.HasPrefix(filepath.Base(event.Name), ".") {
			if err := w.addTree(event.Name); err != nil {
				logging.Get(logging.CategoryWatch).Warn("failed to watch new dir %s: %v", event.Name, err)
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".py") {
		return
	}

	relevant := event.Op.Has(fsnotify.Write)
	if w.onCreate {
		relevant = relevant || event.Op.Has(fsnotify.Create)
	}
	if !relevant {
		return
	}

	logging.WatchDebug("event %s on %s", event.Op, event.Name)
	w.scheduleLint(event.Name)
}

// scheduleLint debounces rapid saves: each new event for the same path
// resets its timer, so the callback fires once per burst.
func (w *Watcher) scheduleLint(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}

	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		if !w.running {
			w.mu.Unlock()
			return
		}
		w.stats.LintsTriggered++
		w.mu.Unlock()

		logging.Watch("lint triggered for %s", path)
		w.onChange(path)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
