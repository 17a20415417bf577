package shader

import (
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// watcher is the implementation of the Watcher interface.
type watcher struct {
	logger *slog.Logger
	fsw    *fsnotify.Watcher
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	files   map[string]bool
	dirs    map[string]bool
	pending map[string]bool
}

// Watcher collects changes to shader files on a background goroutine. The render thread drains
// the collected paths once per frame and hands them to Cache.Reload, so no shader is swapped mid-frame.
type Watcher interface {
	// Watch starts tracking a file. Its directory is watched so editors that replace files are seen.
	//
	// Parameters:
	//   - path: the shader file
	//
	// Returns:
	//   - error: if the directory cannot be watched
	Watch(path string) error

	// Changed returns and clears the tracked files written since the previous call, sorted.
	Changed() []string

	// Close stops the background goroutine.
	Close() error
}

var _ Watcher = &watcher{}

// NewWatcher starts an fsnotify-backed shader file watcher.
//
// Parameters:
//   - logger: the logger for watcher errors; nil uses slog.Default()
//
// Returns:
//   - Watcher: the watcher
//   - error: if the underlying notifier cannot be created
func NewWatcher(logger *slog.Logger) (Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		logger:  logger,
		fsw:     fsw,
		done:    make(chan struct{}),
		files:   make(map[string]bool),
		dirs:    make(map[string]bool),
		pending: make(map[string]bool),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := absPath(event.Name)
			w.mu.Lock()
			if w.files[name] {
				w.pending[name] = true
			}
			w.mu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("shader watcher error", "err", err)
		}
	}
}

func (w *watcher) Watch(path string) error {
	abs := absPath(path)
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files[abs] = true
	return nil
}

func (w *watcher) Changed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	out := make([]string, 0, len(w.pending))
	for p := range w.pending {
		out = append(out, p)
	}
	clear(w.pending)
	sort.Strings(out)
	return out
}

func (w *watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
