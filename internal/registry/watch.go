// ABOUTME: Filesystem watcher that hot-swaps the template set on change
// ABOUTME: Any qualifying event triggers a coalesced full reload

package registry

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces editor save bursts (write + chmod + rename)
// into a single reload.
const reloadDebounce = 150 * time.Millisecond

// Watch observes the registry directory and re-runs LoadAll on any
// qualifying file event, invoking onChange with the new full set. It blocks
// until ctx is done. The registry favors reload-and-swap over incremental
// patching: a little reload cost buys freedom from dangling partial state.
func (r *Registry) Watch(ctx context.Context, onChange func([]*Template)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(r.dir); err != nil {
		return err
	}
	r.logger.Info("watching template directory", "dir", r.dir)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !qualifies(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			if err := r.LoadAll(); err != nil {
				r.logger.Error("reload failed", "error", err)
				continue
			}
			if onChange != nil {
				onChange(r.List())
			}
		}
	}
}

// qualifies reports whether a watcher event should trigger a reload.
func qualifies(event fsnotify.Event) bool {
	name := event.Name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if !eligible(name) {
		return false
	}
	return event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) ||
		event.Has(fsnotify.Rename)
}
