package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file on change and hands the new Config to
// onChange. Grounded on cmd/glyph/commands_codegen.go's watch-mode loop
// (fsnotify.NewWatcher, debounce via time.AfterFunc on Write|Create)
// rather than pkg/hotreload/watcher.go's poll-and-hash approach, since
// the teacher's own CLI already shows the real fsnotify idiom the
// corpus uses for this.
type Watcher struct {
	path     string
	onChange func(*Config, error)
	debounce time.Duration

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
}

// NewWatcher constructs a Watcher for path, invoking onChange with the
// freshly reloaded Config (or the parse error) after each write,
// debounced by debounce.
func NewWatcher(path string, debounce time.Duration, onChange func(*Config, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config %s: %w", path, err)
	}
	return &Watcher{path: path, onChange: onChange, debounce: debounce, fsw: fsw, stop: make(chan struct{})}, nil
}

// Start runs the watch loop in a goroutine until Stop is called.
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				cfg, err := Load(w.path)
				w.onChange(cfg, err)
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.onChange(nil, err)
		}
	}
}

// Stop terminates the watch loop and releases the underlying fsnotify
// watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stop)
	w.fsw.Close()
}
