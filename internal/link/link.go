// Package link reports whether a USB host has configured the device.
package link

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/ehrlich-b/go-msclog/internal/logging"
)

// Static is a link state set programmatically.
type Static struct {
	configured atomic.Bool
}

// NewStatic creates a link in the given state.
func NewStatic(configured bool) *Static {
	s := &Static{}
	s.configured.Store(configured)
	return s
}

// Configured reports the current state.
func (s *Static) Configured() bool {
	return s.configured.Load()
}

// Set changes the state.
func (s *Static) Set(configured bool) {
	s.configured.Store(configured)
}

// Watcher follows a sentinel file: the link is configured while the file
// exists. A gadget-side script creates it when the host enumerates the
// device and removes it on disconnect.
type Watcher struct {
	path    string
	state   Static
	watcher *fsnotify.Watcher
	logger  *logging.Logger
	changes chan bool
}

// NewWatcher starts watching path. The parent directory must exist.
func NewWatcher(path string, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    filepath.Clean(path),
		watcher: fw,
		logger:  logger.WithComponent("link"),
		changes: make(chan bool, 1),
	}
	w.state.Set(exists(path))
	return w, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Configured implements arbiter.Link
func (w *Watcher) Configured() bool {
	return w.state.Configured()
}

// Changes delivers the latest state after each transition. Slow readers
// only see the most recent value.
func (w *Watcher) Changes() <-chan bool {
	return w.changes
}

// Run processes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			w.update(exists(w.path))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.update(exists(w.path))
				continue
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) update(configured bool) {
	if w.state.Configured() == configured {
		return
	}
	w.state.Set(configured)
	w.logger.Info("link state changed", "configured", configured)
	select {
	case <-w.changes:
	default:
	}
	w.changes <- configured
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
