// Tests for [Start] and [After]: period validation, delivery on a fake clock,
// the latest-wins backlog policy, one-shot closing, and resource exhaustion.
package ticker

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"tools.zach/dev/sigloop/internal/logger"
)

const period = time.Second

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func recv(t *testing.T, c <-chan time.Time) time.Time {
	t.Helper()
	select {
	case v := <-c:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
		return time.Time{}
	}
}

// panicClock fails every timer construction, standing in for an exhausted system.
type panicClock struct {
	clockwork.Clock
}

func (panicClock) NewTicker(time.Duration) clockwork.Ticker { panic("no timers left") }
func (panicClock) NewTimer(time.Duration) clockwork.Timer   { panic("no timers left") }

// ///////////////////////////////////////////////
// Construction
// ///////////////////////////////////////////////

func TestStartInvalidPeriod(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		if _, err := Start(clockwork.NewFakeClock(), d); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("Start(%s) error = %v, want ErrInvalidPeriod", d, err)
		}
		if _, err := After(clockwork.NewFakeClock(), d); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("After(%s) error = %v, want ErrInvalidPeriod", d, err)
		}
	}
}

func TestResourceExhausted(t *testing.T) {
	clock := panicClock{Clock: clockwork.NewFakeClock()}
	if _, err := Start(clock, period); !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("Start error = %v, want ErrResourceExhausted", err)
	}
	if _, err := After(clock, period); !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("After error = %v, want ErrResourceExhausted", err)
	}
}

// ///////////////////////////////////////////////
// Periodic Delivery
// ///////////////////////////////////////////////

func TestTickerFiresEachPeriod(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tk, err := Start(clock, period)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tk.Stop()

	if tk.Period() != period {
		t.Errorf("Period = %s, want %s", tk.Period(), period)
	}
	for i := range 3 {
		clock.Advance(period)
		if got := recv(t, tk.C()); !got.Equal(clock.Now()) {
			t.Errorf("tick %d = %v, want %v", i, got, clock.Now())
		}
	}
	if tk.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", tk.Dropped())
	}
}

func TestStalledConsumerSeesOneLatestTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tk, err := Start(clock, period)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tk.Stop()

	clock.Advance(period)
	waitFor(t, "first tick buffered", func() bool { return len(tk.C()) == 1 })
	for want := uint64(1); want <= 3; want++ {
		clock.Advance(period)
		waitFor(t, "stale tick replaced", func() bool { return tk.Dropped() == want })
	}

	if got := recv(t, tk.C()); !got.Equal(clock.Now()) {
		t.Errorf("resumed tick = %v, want latest %v", got, clock.Now())
	}
	select {
	case v := <-tk.C():
		t.Errorf("unexpected backlog tick %v", v)
	default:
	}
}

func TestDeliverReplacesPending(t *testing.T) {
	var buf bytes.Buffer
	tk := newTicker(period, func() {})
	tk.logger = slog.New(logger.NewHandler(&buf, logger.LevelTrace))
	base := time.Unix(1700000000, 0)
	for i := range 3 {
		tk.deliver(base.Add(time.Duration(i) * period))
	}
	if len(tk.c) != 1 {
		t.Fatalf("queue depth = %d, want 1", len(tk.c))
	}
	if got := <-tk.c; !got.Equal(base.Add(2 * period)) {
		t.Errorf("pending = %v, want newest", got)
	}
	if tk.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", tk.Dropped())
	}
	if n := strings.Count(buf.String(), "[TRACE] stale tick replaced"); n != 2 {
		t.Errorf("trace lines = %d, want 2\n%s", n, buf.String())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tk, err := Start(clock, period)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	tk.Stop()
	tk.Stop()

	clock.Advance(3 * period)
	select {
	case v := <-tk.C():
		t.Errorf("tick %v delivered after Stop", v)
	case <-time.After(20 * time.Millisecond):
	}
}

// ///////////////////////////////////////////////
// One-Shot
// ///////////////////////////////////////////////

func TestAfterFiresOnceAndCloses(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tk, err := After(clock, 3*period)
	if err != nil {
		t.Fatalf("After: %v", err)
	}
	defer tk.Stop()

	clock.Advance(2 * period)
	select {
	case v := <-tk.C():
		t.Fatalf("fired early at %v", v)
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(period)
	recv(t, tk.C())

	select {
	case _, ok := <-tk.C():
		if ok {
			t.Error("second value from one-shot ticker")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot channel not closed")
	}
}
