package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// debounce lets editors finish writing before the file is re-read.
const debounce = 100 * time.Millisecond

// Watcher re-resolves the configuration when scan.yaml or .env in the
// project directory changes. A change that fails to resolve is logged and
// the previous configuration stays in effect.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	onChange func(*Resolved)
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool

	mu      sync.RWMutex
	current *Resolved
}

// NewWatcher creates a watcher for dir starting from current.
func NewWatcher(dir string, current *Resolved, onChange func(*Resolved)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		watcher:  fw,
		onChange: onChange,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		current:  current,
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.started = true
	go w.watch()
	log.Info().Str("dir", w.dir).Msg("watching configuration for changes")
	return nil
}

// Stop stops the watcher and waits for it to exit. Safe to call twice.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
	if w.started {
		<-w.done
	}
}

// Current returns the last successfully resolved configuration.
func (w *Watcher) Current() *Resolved {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) watch() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if name != FileName && name != ".env" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Collapse the burst of events one save produces.
			timer := time.NewTimer(debounce)
		drain:
			for {
				select {
				case <-w.watcher.Events:
				case <-timer.C:
					break drain
				case <-w.stopChan:
					timer.Stop()
					return
				}
			}
			log.Info().Str("file", name).Str("event", event.Op.String()).Msg("configuration changed")
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("config watcher error")

		case <-w.stopChan:
			return
		}
	}
}

// Reload re-resolves the configuration immediately.
func (w *Watcher) Reload() {
	w.reload()
}

func (w *Watcher) reload() {
	next, err := Resolve(w.dir)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring invalid configuration change")
		return
	}
	w.mu.Lock()
	w.current = next
	w.mu.Unlock()
	if w.onChange != nil {
		w.onChange(next)
	}
}
