// Package ticker provides periodic and one-shot time event sources with a
// depth-one, latest-wins queue.
//
// A consumer that stalls for several periods sees exactly one pending tick on
// resume, carrying the most recent timestamp. Stale ticks are replaced rather
// than queued, so there is no catch-up burst after a stall.
package ticker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"tools.zach/dev/sigloop/internal/logger"
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrInvalidPeriod is returned for a non-positive period.
	ErrInvalidPeriod = errors.New("ticker period must be positive")
	// ErrResourceExhausted is returned when the clock cannot create a timer.
	ErrResourceExhausted = errors.New("timer resources exhausted")
)

// ///////////////////////////////////////////////
// Ticker
// ///////////////////////////////////////////////

// Ticker delivers time events on [Ticker.C].
type Ticker struct {
	period time.Duration
	// c is the depth-one output queue; forward is its only sender.
	c chan time.Time
	// stop releases the underlying clock ticker or timer.
	stop    func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	logger  *slog.Logger
}

// Start returns a Ticker firing every period on clock. A nil clock uses the
// real clock.
func Start(clock clockwork.Clock, period time.Duration) (*Ticker, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var src clockwork.Ticker
	if err := guard(func() { src = clock.NewTicker(period) }); err != nil {
		return nil, err
	}
	t := newTicker(period, src.Stop)
	go t.forward(src.Chan(), false)
	return t, nil
}

// After returns a one-shot Ticker that fires once after d and then closes
// [Ticker.C]. It is used to layer a deadline next to periodic sources.
func After(clock clockwork.Clock, d time.Duration) (*Ticker, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, d)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var timer clockwork.Timer
	if err := guard(func() { timer = clock.NewTimer(d) }); err != nil {
		return nil, err
	}
	t := newTicker(d, func() { timer.Stop() })
	go t.forward(timer.Chan(), true)
	return t, nil
}

func newTicker(period time.Duration, stop func()) *Ticker {
	return &Ticker{
		period:  period,
		c:       make(chan time.Time, 1),
		stop:    stop,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  slog.Default(),
	}
}

// guard maps a panic from the clock's timer constructor to ErrResourceExhausted.
func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrResourceExhausted, r)
		}
	}()
	fn()
	return nil
}

// C returns the tick queue. Periodic tickers never close it; one-shot tickers
// close it after their single event.
func (t *Ticker) C() <-chan time.Time {
	return t.c
}

// Period returns the configured interval.
func (t *Ticker) Period() time.Duration {
	return t.period
}

// Dropped returns how many stale ticks were replaced before being consumed.
func (t *Ticker) Dropped() uint64 {
	return t.dropped.Load()
}

// Stop releases the clock resources. It is idempotent and waits for the
// forwarding goroutine to exit.
func (t *Ticker) Stop() {
	t.once.Do(func() {
		t.stop()
		close(t.done)
		<-t.stopped
	})
}

func (t *Ticker) forward(in <-chan time.Time, oneShot bool) {
	defer close(t.stopped)
	for {
		select {
		case <-t.done:
			return
		case now := <-in:
			t.deliver(now)
			if oneShot {
				close(t.c)
				return
			}
		}
	}
}

// deliver puts now in the queue, evicting a stale pending tick if needed.
func (t *Ticker) deliver(now time.Time) {
	for {
		select {
		case t.c <- now:
			return
		default:
		}
		select {
		case stale := <-t.c:
			dropped := t.dropped.Add(1)
			logger.Trace(t.logger, "stale tick replaced", "stale", stale, "dropped", dropped)
		default:
		}
	}
}
