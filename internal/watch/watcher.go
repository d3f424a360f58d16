// Package watch turns file changes into a time event source for the event
// loop. It uses fsnotify and falls back to modification-time polling when
// native notifications are unavailable.
package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the stat interval used in polling mode.
const DefaultPollInterval = 2 * time.Second

// ErrNoPaths is returned when a watcher is created without paths.
var ErrNoPaths = errors.New("no paths to watch")

// ///////////////////////////////////////////////
// Options
// ///////////////////////////////////////////////

// Options configures a [Watcher].
type Options struct {
	// Paths are files or directories to watch (directories non-recursively).
	Paths []string
	// Include holds doublestar patterns a changed path must match. Empty
	// matches everything.
	Include []string
	// Exclude holds doublestar patterns that suppress a change.
	Exclude []string
	// PollInterval is used in polling mode; zero means [DefaultPollInterval].
	PollInterval time.Duration
	// ForcePolling skips fsnotify entirely.
	ForcePolling bool
}

// ValidatePatterns reports the first malformed doublestar pattern.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			return fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher monitors paths and emits the change time on [Watcher.Events].
type Watcher struct {
	opts Options
	// events delivers the time of the latest change. Buffered to 1 so bursts
	// of writes coalesce into one event.
	events chan time.Time
	// done is closed by [Watcher.Close] to signal goroutines to exit.
	done chan struct{}
	// fsw is the underlying fsnotify watcher; nil when polling.
	fsw     *fsnotify.Watcher
	once    sync.Once
	wg      sync.WaitGroup
	polling atomic.Bool
	logger  *slog.Logger
}

// New creates and starts a Watcher.
func New(opts Options) (*Watcher, error) {
	if len(opts.Paths) == 0 {
		return nil, ErrNoPaths
	}
	if err := ValidatePatterns(opts.Include); err != nil {
		return nil, err
	}
	if err := ValidatePatterns(opts.Exclude); err != nil {
		return nil, err
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	w := &Watcher{
		opts:   opts,
		events: make(chan time.Time, 1),
		done:   make(chan struct{}),
		logger: slog.Default(),
	}

	if opts.ForcePolling {
		w.startPolling()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	for _, p := range opts.Paths {
		if err := fsw.Add(p); err != nil {
			w.logger.Info("cannot watch path, falling back to polling", "path", p, "error", err)
			fsw.Close()
			w.startPolling()
			return w, nil
		}
	}
	w.fsw = fsw
	w.wg.Add(1)
	go w.watch()
	return w, nil
}

// Events returns the change event channel. It is never closed.
func (w *Watcher) Events() <-chan time.Time {
	return w.events
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

// Matches reports whether a changed path passes the include and exclude
// filters.
func (w *Watcher) Matches(path string) bool {
	p := filepath.ToSlash(path)
	for _, pattern := range w.opts.Exclude {
		if ok, _ := doublestar.Match(filepath.ToSlash(pattern), p); ok {
			return false
		}
	}
	if len(w.opts.Include) == 0 {
		return true
	}
	for _, pattern := range w.opts.Include {
		if ok, _ := doublestar.Match(filepath.ToSlash(pattern), p); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	w.wg.Add(1)
	go w.poll()
}

// watch forwards matching write/create/remove notifications. On an fsnotify
// error it hands over to polling.
func (w *Watcher) watch() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				if w.Matches(event.Name) {
					w.notify(time.Now())
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Info("fsnotify error, switching to polling", "error", err)
			w.polling.Store(true)
			w.wg.Add(1)
			go w.poll()
			return
		}
	}
}

// poll periodically scans the watched paths and notifies when the newest
// matching modification time advances.
func (w *Watcher) poll() {
	defer w.wg.Done()
	lastMod := w.latestMod()

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if mod := w.latestMod(); mod.After(lastMod) {
				lastMod = mod
				w.notify(time.Now())
			}
		}
	}
}

// latestMod returns the newest modification time among matching files.
func (w *Watcher) latestMod() time.Time {
	var latest time.Time
	consider := func(path string, info os.FileInfo) {
		if w.Matches(path) && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	for _, p := range w.opts.Paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			consider(p, info)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				continue
			}
			consider(filepath.Join(p, e.Name()), fi)
		}
	}
	return latest
}

// notify offers t to the events channel, replacing a pending event so the
// consumer always sees the latest change time.
func (w *Watcher) notify(t time.Time) {
	for {
		select {
		case w.events <- t:
			return
		default:
		}
		select {
		case <-w.events:
		default:
		}
	}
}
