// Package interrupt turns process interruption requests (Ctrl+C, SIGTERM, or a
// programmatic stop request) into events on a bounded channel that a single
// consumer can select on alongside its other event sources.
//
// Exactly one [Notifier] may be registered per [Registry]. The package-level
// [Default] registry represents the process: it is installed once at startup,
// never reinstalled, and torn down implicitly at process exit.
//
// Delivery never blocks. Each raw occurrence is offered to the event queue with
// a non-blocking send; when the queue is full the occurrence is dropped and
// counted. Consumers only need to know that a stop was requested, not how many
// times.
package interrupt

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"tools.zach/dev/sigloop/internal/logger"
)

// DefaultCapacity is the interrupt queue size used when no [WithCapacity]
// option is given.
const DefaultCapacity = 100

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrAlreadyRegistered is returned when a registry already owns a notifier.
	ErrAlreadyRegistered = errors.New("interrupt handler already registered")
	// ErrInvalidCapacity is returned for a queue capacity below 1.
	ErrInvalidCapacity = errors.New("invalid interrupt queue capacity")
	// ErrNoSignals is returned when a registration names no signals.
	ErrNoSignals = errors.New("no signals to register")
)

// RegistrationError reports that the interrupt source could not be installed.
// It is raised once, synchronously, and is fatal to startup.
type RegistrationError struct {
	Err error
}

func (e *RegistrationError) Error() string {
	return "register interrupt source: " + e.Err.Error()
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// ///////////////////////////////////////////////
// Event
// ///////////////////////////////////////////////

// Event records that an interruption was requested. Signal is nil when the
// request did not come from the OS (see [Notifier.Trigger]).
type Event struct {
	Signal os.Signal
	At     time.Time
}

// String returns the signal name, or "requested" for programmatic triggers.
func (e Event) String() string {
	if e.Signal == nil {
		return "requested"
	}
	return e.Signal.String()
}

// ///////////////////////////////////////////////
// Options
// ///////////////////////////////////////////////

type options struct {
	capacity int
	source   Source
	signals  []os.Signal
	handler  func(Event)
	clock    clockwork.Clock
	logger   *slog.Logger
}

// Option configures a [Notifier] at registration time.
type Option func(*options)

// WithCapacity sets the size of the interrupt event queue.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithSource replaces the OS signal facility, mainly for tests.
func WithSource(src Source) Option {
	return func(o *options) { o.source = src }
}

// WithSignals overrides the platform default signal set.
func WithSignals(sigs ...os.Signal) Option {
	return func(o *options) { o.signals = sigs }
}

// WithHandler installs a direct callback that runs for every raw OS
// occurrence, before the event is queued. fn runs on the delivery goroutine
// and must return quickly without blocking; a slow handler delays delivery of
// later interrupts.
func WithHandler(fn func(Event)) Option {
	return func(o *options) { o.handler = fn }
}

// WithClock sets the clock used to timestamp events.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger for registration diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

// Registry guards single ownership of the interrupt source. The zero value is
// ready to use.
type Registry struct {
	owned atomic.Bool
}

// Default is the process-wide registry used by [Register].
var Default = &Registry{}

// Register installs the process interrupt source on the [Default] registry.
func Register(opts ...Option) (*Notifier, error) {
	return Default.Register(opts...)
}

// registered reports whether the registry owns a notifier.
func (r *Registry) registered() bool {
	return r.owned.Load()
}

// Register installs an interrupt source and returns its notifier. A second
// call on the same registry fails with a [*RegistrationError] wrapping
// [ErrAlreadyRegistered] and leaves the first registration untouched. If the
// source rejects registration the registry is left free.
func (r *Registry) Register(opts ...Option) (*Notifier, error) {
	o := options{
		capacity: DefaultCapacity,
		source:   OSSource{},
		signals:  DefaultSignals(),
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < 1 {
		return nil, &RegistrationError{Err: fmt.Errorf("%w: %d", ErrInvalidCapacity, o.capacity)}
	}
	if len(o.signals) == 0 {
		return nil, &RegistrationError{Err: ErrNoSignals}
	}

	if !r.owned.CompareAndSwap(false, true) {
		return nil, &RegistrationError{Err: ErrAlreadyRegistered}
	}

	n := &Notifier{
		events:  make(chan Event, o.capacity),
		raw:     make(chan os.Signal, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		source:  o.source,
		handler: o.handler,
		clock:   o.clock,
		logger:  o.logger,
	}
	if err := o.source.Notify(n.raw, o.signals...); err != nil {
		r.owned.Store(false)
		return nil, &RegistrationError{Err: err}
	}
	go n.deliver()

	o.logger.Debug("interrupt source registered", "signals", fmt.Sprint(o.signals), "capacity", o.capacity)
	return n, nil
}

// ///////////////////////////////////////////////
// Notifier
// ///////////////////////////////////////////////

// Notifier owns the OS interrupt registration and exposes it as a bounded
// event channel.
type Notifier struct {
	// events is the bounded queue read by the consumer.
	events chan Event
	// raw receives OS signals; owned exclusively by the delivery goroutine.
	raw chan os.Signal
	// done is closed by [Notifier.Close] to stop the delivery goroutine.
	done chan struct{}
	// stopped is closed when the delivery goroutine exits.
	stopped chan struct{}
	source  Source
	handler func(Event)
	clock   clockwork.Clock
	logger  *slog.Logger
	dropped atomic.Uint64
	once    sync.Once
}

// Events returns the interrupt event queue. It is never closed.
func (n *Notifier) Events() <-chan Event {
	return n.events
}

// Trigger requests an interruption without an OS signal. It never blocks and
// is safe for concurrent use. It reports whether the event was queued; false
// means the queue was already full and the request coalesced with a pending
// one.
func (n *Notifier) Trigger() bool {
	return n.enqueue(Event{At: n.clock.Now()})
}

// Dropped returns how many occurrences were discarded because the queue was full.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Close stops OS delivery. It is idempotent. The owning registry stays
// claimed: an interrupt source is never reinstalled.
func (n *Notifier) Close() error {
	n.once.Do(func() {
		n.source.Stop(n.raw)
		close(n.done)
		<-n.stopped
	})
	return nil
}

// deliver forwards raw OS signals into the event queue until Close.
func (n *Notifier) deliver() {
	defer close(n.stopped)
	for {
		select {
		case <-n.done:
			return
		case sig := <-n.raw:
			ev := Event{Signal: sig, At: n.clock.Now()}
			n.handle(ev)
			n.enqueue(ev)
		}
	}
}

// handle runs the direct callback, recovering a panic so a bad handler does
// not take down delivery.
func (n *Notifier) handle(ev Event) {
	if n.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("interrupt handler panic", "error", r, "event", ev.String())
		}
	}()
	n.handler(ev)
}

// enqueue performs the single non-blocking send. Overflow drops the new event.
func (n *Notifier) enqueue(ev Event) bool {
	select {
	case n.events <- ev:
		return true
	default:
		dropped := n.dropped.Add(1)
		logger.Trace(n.logger, "interrupt dropped, queue full", "event", ev.String(), "dropped", dropped)
		return false
	}
}
