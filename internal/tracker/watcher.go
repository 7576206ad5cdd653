package tracker

import (
	"fmt"
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates tracker records when files change out-of-band, so
// the next edit attempt fails fast instead of waiting for the mtime check.
// The mtime comparison in AssertCanEdit remains the source of truth; the
// watcher is an eager optimization.
type Watcher struct {
	tracker *Tracker
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	done    chan struct{}
	closed  bool
	watched map[string]bool
}

// NewWatcher creates a watcher bound to the tracker.
func NewWatcher(t *Tracker) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		tracker: t,
		watcher: fw,
		done:    make(chan struct{}),
		watched: make(map[string]bool),
	}
	go w.loop()
	return w, nil
}

// WatchDir adds a directory to the watch set. Watching is per-directory
// because fsnotify delivers events for direct children.
func (w *Watcher) WatchDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.watched[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.watched[dir] = true
	return nil
}

// Close stops the event loop and releases the underlying watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.tracker.Invalidate(ev.Name)
			case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
				// The tracker's own writes fire events too; only drop the
				// record if the on-disk mtime really advanced past it.
				w.tracker.InvalidateIfStale(ev.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("WARN: file watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}
