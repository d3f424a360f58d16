// Tests for the multiplexer: interrupt priority and the no-tick-after-interrupt
// guarantee, duplicate interrupt coalescing, continuous ticking without an
// interrupt, closed sources, and the single-run lifecycle.
package loop

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"tools.zach/dev/sigloop/internal/interrupt"
	"tools.zach/dev/sigloop/internal/ticker"
)

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// nopSource registers without relaying any OS signals.
type nopSource struct{}

func (nopSource) Notify(chan<- os.Signal, ...os.Signal) error { return nil }
func (nopSource) Stop(chan<- os.Signal)                       {}

// runAsync starts l.Run on a goroutine and returns a channel with its result.
func runAsync(l *Loop) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after interrupt")
	}
}

func waitSignal(t *testing.T, c <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// ///////////////////////////////////////////////
// State
// ///////////////////////////////////////////////

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Running, "running"},
		{ShuttingDown, "shutting_down"},
		{Terminated, "terminated"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

// ///////////////////////////////////////////////
// Interrupt Priority
// ///////////////////////////////////////////////

func TestNoTickAfterInterrupt(t *testing.T) {
	const n = 5
	for k := 0; k <= n; k++ {
		t.Run(fmt.Sprintf("interrupt_at_%d", k), func(t *testing.T) {
			ticks := make(chan time.Time)
			interrupts := make(chan interrupt.Event, 1)
			handled := make(chan struct{}, n)
			var count int

			l := New(interrupts,
				WithSource("tick", ticks, func(Tick) {
					count++
					handled <- struct{}{}
				}),
			)
			done := runAsync(l)

			for i := 0; i < k; i++ {
				ticks <- time.Now()
				waitSignal(t, handled, "tick callback")
			}
			interrupts <- interrupt.Event{}
			waitDone(t, done)

			// Ticks offered after shutdown are never consumed.
			for i := k; i < n; i++ {
				select {
				case ticks <- time.Now():
					t.Fatalf("tick %d accepted after shutdown", i)
				default:
				}
			}
			if count != k {
				t.Errorf("tick callbacks = %d, want %d", count, k)
			}
			if l.State() != Terminated {
				t.Errorf("State = %s, want terminated", l.State())
			}
		})
	}
}

func TestInterruptWinsTieWithTick(t *testing.T) {
	for range 50 {
		ticks := make(chan time.Time, 1)
		interrupts := make(chan interrupt.Event, 1)
		ticks <- time.Now()
		interrupts <- interrupt.Event{}

		var count int
		l := New(interrupts, WithSource("tick", ticks, func(Tick) { count++ }))
		if err := l.Run(); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if count != 0 {
			t.Fatalf("processed %d ticks with an interrupt ready, want 0", count)
		}
	}
}

func TestInterruptBeforeAnyTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tk, err := ticker.Start(clock, time.Second)
	if err != nil {
		t.Fatalf("ticker.Start: %v", err)
	}
	defer tk.Stop()

	var out bytes.Buffer
	interrupts := make(chan interrupt.Event, 1)
	l := New(interrupts,
		WithSource("tick", tk.C(), func(Tick) { fmt.Fprintln(&out, "working!") }),
		WithOnInterrupt(func(interrupt.Event) {
			fmt.Fprintln(&out)
			fmt.Fprintln(&out, "Goodbye!")
		}),
	)
	interrupts <- interrupt.Event{}
	if err := l.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.String(); got != "\nGoodbye!\n" {
		t.Errorf("output = %q, want only the farewell", got)
	}
	if l.Ticks() != 0 {
		t.Errorf("Ticks = %d, want 0", l.Ticks())
	}
}

func TestDuplicateInterruptsCoalesce(t *testing.T) {
	interrupts := make(chan interrupt.Event, interrupt.DefaultCapacity)
	interrupts <- interrupt.Event{}
	interrupts <- interrupt.Event{}

	var farewells int
	l := New(interrupts, WithOnInterrupt(func(interrupt.Event) { farewells++ }))
	if err := l.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if farewells != 1 {
		t.Errorf("farewell ran %d times, want 1", farewells)
	}
	if len(interrupts) != 0 {
		t.Errorf("%d interrupts left queued, want drained", len(interrupts))
	}
}

func TestClosedInterruptQueueTerminates(t *testing.T) {
	interrupts := make(chan interrupt.Event)
	close(interrupts)
	l := New(interrupts)
	if err := l.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if l.State() != Terminated {
		t.Errorf("State = %s, want terminated", l.State())
	}
}

// ///////////////////////////////////////////////
// Ticking
// ///////////////////////////////////////////////

func TestWorkingThenGoodbye(t *testing.T) {
	var r interrupt.Registry
	n, err := r.Register(interrupt.WithSource(nopSource{}))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer n.Close()

	clock := clockwork.NewFakeClock()
	tk, err := ticker.Start(clock, time.Second)
	if err != nil {
		t.Fatalf("ticker.Start: %v", err)
	}
	defer tk.Stop()

	var out bytes.Buffer
	handled := make(chan struct{}, 8)
	l := New(n.Events(),
		WithSource("tick", tk.C(), func(Tick) {
			fmt.Fprintln(&out, "working!")
			handled <- struct{}{}
		}),
		WithOnInterrupt(func(interrupt.Event) {
			fmt.Fprintln(&out)
			fmt.Fprintln(&out, "Goodbye!")
		}),
	)
	done := runAsync(l)

	for range 3 {
		clock.Advance(time.Second)
		waitSignal(t, handled, "tick callback")
	}
	clock.Advance(500 * time.Millisecond)
	n.Trigger()
	waitDone(t, done)

	want := strings.Repeat("working!\n", 3) + "\nGoodbye!\n"
	if got := out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestKeepsRunningWithoutInterrupt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tk, err := ticker.Start(clock, time.Second)
	if err != nil {
		t.Fatalf("ticker.Start: %v", err)
	}
	defer tk.Stop()

	interrupts := make(chan interrupt.Event, 1)
	handled := make(chan struct{}, 8)
	l := New(interrupts, WithOnTick(func(tick Tick) {
		if tick.Source != "tick" {
			t.Errorf("Source = %q, want tick", tick.Source)
		}
		handled <- struct{}{}
	}), WithSource("tick", tk.C(), nil))
	done := runAsync(l)

	for range 5 {
		clock.Advance(time.Second)
		waitSignal(t, handled, "tick callback")
	}
	if got := l.Ticks(); got != 5 {
		t.Errorf("Ticks = %d, want 5", got)
	}
	if l.State() != Running {
		t.Errorf("State = %s, want running", l.State())
	}
	select {
	case err := <-done:
		t.Fatalf("Run returned %v without an interrupt", err)
	default:
	}

	interrupts <- interrupt.Event{}
	waitDone(t, done)
}

func TestClosedSourceIsDropped(t *testing.T) {
	clock := clockwork.NewFakeClock()
	periodic, err := ticker.Start(clock, time.Second)
	if err != nil {
		t.Fatalf("ticker.Start: %v", err)
	}
	defer periodic.Stop()
	once, err := ticker.After(clock, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("ticker.After: %v", err)
	}
	defer once.Stop()

	interrupts := make(chan interrupt.Event, 1)
	seen := make(chan string, 8)
	record := func(tick Tick) { seen <- tick.Source }
	l := New(interrupts,
		WithSource("tick", periodic.C(), record),
		WithSource("deadline", once.C(), record),
	)
	done := runAsync(l)

	got := map[string]int{}
	clock.Advance(time.Second)
	got[<-seen]++
	clock.Advance(time.Second)
	// Both the periodic tick and the one-shot fire in this step.
	for range 2 {
		select {
		case s := <-seen:
			got[s]++
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for ticks")
		}
	}
	clock.Advance(time.Second)
	got[<-seen]++

	interrupts <- interrupt.Event{}
	waitDone(t, done)

	if got["tick"] != 3 || got["deadline"] != 1 {
		t.Errorf("ticks by source = %v, want tick:3 deadline:1", got)
	}
}

func TestDeadlineNotCountedAsTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	periodic, err := ticker.Start(clock, time.Second)
	if err != nil {
		t.Fatalf("ticker.Start: %v", err)
	}
	defer periodic.Stop()
	once, err := ticker.After(clock, 2500*time.Millisecond)
	if err != nil {
		t.Fatalf("ticker.After: %v", err)
	}
	defer once.Stop()

	interrupts := make(chan interrupt.Event, 1)
	ticked := make(chan struct{}, 8)
	l := New(interrupts,
		WithSource("tick", periodic.C(), func(Tick) { ticked <- struct{}{} }),
		WithDeadline(once.C(), func(tk Tick) {
			if tk.Source != "deadline" {
				t.Errorf("deadline tick source = %q", tk.Source)
			}
			interrupts <- interrupt.Event{}
		}),
	)
	done := runAsync(l)

	for range 2 {
		clock.Advance(time.Second)
		waitSignal(t, ticked, "tick callback")
	}
	clock.Advance(500 * time.Millisecond)
	waitDone(t, done)

	if got := l.Ticks(); got != 2 {
		t.Errorf("Ticks = %d, want 2", got)
	}
}

// ///////////////////////////////////////////////
// Lifecycle
// ///////////////////////////////////////////////

func TestRunTwice(t *testing.T) {
	interrupts := make(chan interrupt.Event, 1)
	interrupts <- interrupt.Event{}
	l := New(interrupts)
	if err := l.Run(); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := l.Run(); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run = %v, want ErrAlreadyRun", err)
	}
}

func TestRunWithoutInterruptSource(t *testing.T) {
	l := New(nil)
	if err := l.Run(); !errors.Is(err, ErrNoInterruptSource) {
		t.Errorf("Run = %v, want ErrNoInterruptSource", err)
	}
}
