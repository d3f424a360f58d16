// Package loop implements the event multiplexer: a single consumer that waits
// on an interrupt queue and any number of time event sources, dispatching
// whichever is ready first until an interrupt arrives.
//
// The interrupt queue has strict priority. It is checked before every wait
// and again after a tick wins the wait, so a tick that became ready alongside
// an interrupt is never processed. Once an interrupt is observed the loop runs
// its farewell callback, drains duplicate interrupts, and returns. It never
// re-enters the running state.
package loop

import (
	"errors"
	"log/slog"
	"reflect"
	"sync/atomic"
	"time"

	"tools.zach/dev/sigloop/internal/interrupt"
)

// ///////////////////////////////////////////////
// State
// ///////////////////////////////////////////////

// State is the multiplexer lifecycle state.
type State int32

const (
	Running State = iota
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

var (
	// ErrAlreadyRun is returned when Run is called more than once.
	ErrAlreadyRun = errors.New("loop already run")
	// ErrNoInterruptSource is returned when the loop has no interrupt queue.
	ErrNoInterruptSource = errors.New("loop has no interrupt source")
)

// Tick is a time event tagged with the name of the source that produced it.
type Tick struct {
	Source string
	At     time.Time
}

// source is one registered time event source.
type source struct {
	name string
	c    <-chan time.Time
	fn   func(Tick)
	// deadline events are dispatched but not counted as ticks.
	deadline bool
}

// Option configures a [Loop].
type Option func(*Loop)

// WithSource adds a time event source. fn handles its ticks; a nil fn falls
// back to the [WithOnTick] handler. Sources are waited on with equal priority,
// first ready wins.
func WithSource(name string, c <-chan time.Time, fn func(Tick)) Option {
	return func(l *Loop) {
		l.sources = append(l.sources, source{name: name, c: c, fn: fn})
	}
}

// WithDeadline adds a one-shot source whose event ends the run rather than
// doing work, typically by requesting an interrupt. fn receives a [Tick] with
// Source "deadline". Deadline events are not counted by [Loop.Ticks].
func WithDeadline(c <-chan time.Time, fn func(Tick)) Option {
	return func(l *Loop) {
		l.sources = append(l.sources, source{name: "deadline", c: c, fn: fn, deadline: true})
	}
}

// WithOnTick sets the default tick handler.
func WithOnTick(fn func(Tick)) Option {
	return func(l *Loop) { l.onTick = fn }
}

// WithOnInterrupt sets the cleanup/farewell action run once during shutdown.
// It must be synchronous and bounded.
func WithOnInterrupt(fn func(interrupt.Event)) Option {
	return func(l *Loop) { l.onInterrupt = fn }
}

// WithLogger sets the loop's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// ///////////////////////////////////////////////
// Loop
// ///////////////////////////////////////////////

// Loop is the event multiplexer. Tick handlers and the interrupt callback run
// on the goroutine that calls [Loop.Run], so state they touch needs no locking.
type Loop struct {
	interrupts  <-chan interrupt.Event
	sources     []source
	onTick      func(Tick)
	onInterrupt func(interrupt.Event)
	logger      *slog.Logger

	state   atomic.Int32
	started atomic.Bool
	ticks   atomic.Uint64
}

// New returns a Loop consuming interrupts and the sources given as options.
func New(interrupts <-chan interrupt.Event, opts ...Option) *Loop {
	l := &Loop{interrupts: interrupts, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the current lifecycle state. Safe from any goroutine.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Ticks returns how many ticks have been dispatched, excluding deadline events.
func (l *Loop) Ticks() uint64 {
	return l.ticks.Load()
}

// Run blocks until an interrupt is observed, then returns nil. A requested
// interrupt is the normal way out, not a failure. Without an interrupt Run
// does not return. A source whose channel closes is dropped from the wait set.
func (l *Loop) Run() error {
	if l.interrupts == nil {
		return ErrNoInterruptSource
	}
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	active := append([]source(nil), l.sources...)
	cases := make([]reflect.SelectCase, 0, len(active)+1)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(l.interrupts)})
	for _, s := range active {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.c)})
	}

	l.logger.Debug("event loop running", "sources", len(active))
	for {
		if ev, ok := l.pending(); ok {
			l.shutdown(ev)
			return nil
		}

		chosen, recv, ok := reflect.Select(cases)
		if chosen == 0 {
			var ev interrupt.Event
			if ok {
				ev = recv.Interface().(interrupt.Event)
			}
			l.shutdown(ev)
			return nil
		}

		src := active[chosen-1]
		if !ok {
			l.logger.Debug("event source closed", "source", src.name)
			cases = append(cases[:chosen], cases[chosen+1:]...)
			active = append(active[:chosen-1], active[chosen:]...)
			continue
		}

		// Tie-break: an interrupt that became ready in the same cycle wins.
		if ev, ok := l.pending(); ok {
			l.logger.Debug("tick superseded by interrupt", "source", src.name)
			l.shutdown(ev)
			return nil
		}
		l.dispatch(src, recv.Interface().(time.Time))
	}
}

// pending performs a non-blocking receive on the interrupt queue. A closed
// queue counts as an interrupt.
func (l *Loop) pending() (interrupt.Event, bool) {
	select {
	case ev, ok := <-l.interrupts:
		if !ok {
			return interrupt.Event{}, true
		}
		return ev, true
	default:
		return interrupt.Event{}, false
	}
}

func (l *Loop) dispatch(src source, at time.Time) {
	if !src.deadline {
		l.ticks.Add(1)
	}
	fn := src.fn
	if fn == nil {
		fn = l.onTick
	}
	if fn != nil {
		fn(Tick{Source: src.name, At: at})
	}
}

// shutdown performs the single Running -> ShuttingDown -> Terminated transition.
func (l *Loop) shutdown(ev interrupt.Event) {
	l.state.Store(int32(ShuttingDown))
	l.logger.Info("interrupt received, shutting down", "event", ev.String(), "ticks", l.ticks.Load())

	if l.onInterrupt != nil {
		l.onInterrupt(ev)
	}
	if n := l.drain(); n > 0 {
		l.logger.Debug("coalesced duplicate interrupts", "count", n)
	}
	l.state.Store(int32(Terminated))
}

// drain empties the interrupt queue so repeated requests collapse into one.
func (l *Loop) drain() int {
	n := 0
	for {
		select {
		case _, ok := <-l.interrupts:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}
