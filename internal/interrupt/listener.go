package interrupt

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Listener drains a notifier's events on a dedicated goroutine and calls fn
// for each one. Unlike the select loop it observes every queued occurrence and
// coordinates no shutdown: it is for logging and best-effort notification.
type Listener struct {
	n       *Notifier
	fn      func(Event)
	done    chan struct{}
	stopped chan struct{}
	started atomic.Bool
	once    sync.Once
	logger  *slog.Logger
}

// NewListener returns a Listener for n. Call [Listener.Start] to begin.
// A Listener consumes n's events exclusively while running.
func NewListener(n *Notifier, fn func(Event)) *Listener {
	return &Listener{
		n:       n,
		fn:      fn,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  slog.Default(),
	}
}

// Start launches the listening goroutine. Subsequent calls are no-ops.
func (l *Listener) Start() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go l.listen()
}

// Close stops the listener and waits for an in-flight callback to return.
func (l *Listener) Close() {
	l.once.Do(func() { close(l.done) })
	if l.started.Load() {
		<-l.stopped
	}
}

func (l *Listener) listen() {
	defer close(l.stopped)
	for {
		select {
		case <-l.done:
			return
		case ev := <-l.n.Events():
			l.call(ev)
		}
	}
}

// call runs fn, recovering a panic so one bad callback does not kill the listener.
func (l *Listener) call(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("interrupt listener panic", "error", r, "event", ev.String())
		}
	}()
	if l.fn != nil {
		l.fn(ev)
	}
}
