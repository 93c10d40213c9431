// ABOUTME: fsnotify watcher over the enabled and disabled artifact directories
// ABOUTME: Coalesces bursts of filesystem events into one debounced callback

package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a change callback fires.
const DefaultDebounce = 500 * time.Millisecond

// dirWatch tracks which artifact directories are watched. A directory that
// does not exist yet is watched through its parent until it is created.
type dirWatch struct {
	watcher *fsnotify.Watcher
	dirs    []string
	pending map[string]bool
}

// add watches every pending directory that now exists. It returns how
// many were added.
func (d *dirWatch) add() (int, error) {
	added := 0
	for _, dir := range d.dirs {
		if !d.pending[dir] {
			continue
		}
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := d.watcher.Add(dir); err != nil {
			return added, fmt.Errorf("watching %s: %w", dir, err)
		}
		delete(d.pending, dir)
		added++
	}
	return added, nil
}

// relevant reports whether an event path touches an artifact directory.
func (d *dirWatch) relevant(name string) bool {
	parent := filepath.Dir(name)
	for _, dir := range d.dirs {
		if name == dir || parent == dir {
			return true
		}
	}
	return false
}

// Watch starts watching both artifact directories and calls onChange after
// each burst of changes settles. A directory missing at start is picked up
// when it is created, as long as its parent exists. It returns an error if
// nothing could be watched; callers fall back to listing on demand. The
// watcher stops when ctx is done.
func (r *Registry) Watch(ctx context.Context, debounce time.Duration, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	d := &dirWatch{
		watcher: watcher,
		dirs:    []string{filepath.Clean(r.enabledDir), filepath.Clean(r.disabledDir)},
		pending: map[string]bool{},
	}
	for _, dir := range d.dirs {
		d.pending[dir] = true
	}

	watched, err := d.add()
	if err != nil {
		r.logger.Warn("cannot watch directory", "error", err)
	}
	for _, dir := range d.dirs {
		if !d.pending[dir] {
			continue
		}
		parent := filepath.Dir(dir)
		if _, err := os.Stat(parent); err != nil {
			continue
		}
		if err := watcher.Add(parent); err != nil {
			r.logger.Warn("cannot watch parent directory", "dir", parent, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 {
		_ = watcher.Close()
		return errors.New("no artifact directories to watch")
	}

	go r.runWatcher(ctx, d, debounce, onChange)
	r.logger.Info("watching artifact directories", "enabled_dir", r.enabledDir, "disabled_dir", r.disabledDir)
	return nil
}

func (r *Registry) runWatcher(ctx context.Context, d *dirWatch, debounce time.Duration, onChange func()) {
	defer d.watcher.Close()

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				// Our own permission normalization.
				continue
			}
			if event.Has(fsnotify.Create) && len(d.pending) > 0 {
				if n, err := d.add(); err != nil {
					r.logger.Warn("cannot watch directory", "error", err)
				} else if n > 0 {
					r.logger.Info("artifact directory appeared", "path", event.Name)
				}
			}
			if !d.relevant(filepath.Clean(event.Name)) {
				continue
			}
			r.logger.Debug("artifact directory changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(debounce)

		case <-timer.C:
			onChange()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("watcher error", "error", err)
		}
	}
}
