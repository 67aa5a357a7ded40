package hotreload

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherClosed is returned when adding paths to a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// fileWatcher reports debounced changes to individual files. It watches the
// parent directories so editors that save by rename are still seen.
type fileWatcher struct {
	watcher *fsnotify.Watcher
	delay   time.Duration

	mu      sync.Mutex
	dirs    map[string]int
	pending map[string]*time.Timer
	events  chan string
	errors  chan error

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

func newFileWatcher(delay time.Duration) (*fileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = DefaultDebounce
	}

	w := &fileWatcher{
		watcher: fsw,
		delay:   delay,
		dirs:    make(map[string]int),
		pending: make(map[string]*time.Timer),
		events:  make(chan string, 64),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}
	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

// Add starts watching the directory holding path. Directories are
// reference counted across files.
func (w *fileWatcher) Add(path string) error {
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	return nil
}

// Remove drops one reference to the directory holding path.
func (w *fileWatcher) Remove(path string) {
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.dirs[dir] == 0 {
		return
	}
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		_ = w.watcher.Remove(dir)
	}
}

// Events delivers the path of each changed file once its changes settle.
func (w *fileWatcher) Events() <-chan string { return w.events }

// Errors delivers fsnotify errors.
func (w *fileWatcher) Errors() <-chan error { return w.errors }

// Close stops the watcher.
func (w *fileWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.closedWg.Wait()
	return w.watcher.Close()
}

func (w *fileWatcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.debounce(filepath.Clean(ev.Name))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// debounce coalesces bursts of events on one path into a single delivery.
func (w *fileWatcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.delay)
		return
	}
	w.pending[path] = time.AfterFunc(w.delay, func() { w.fire(path) })
}

func (w *fileWatcher) fire(path string) {
	w.mu.Lock()
	if _, ok := w.pending[path]; !ok || w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	select {
	case w.events <- path:
	case <-w.closeCh:
	default:
		// Channel full; the poll tick picks the change up.
	}
}
