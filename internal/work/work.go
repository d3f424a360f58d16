// Package work defines the units of work the daemon performs between events.
//
// A [Unit] runs either inline on every tick of the event loop, where a tick's
// work always completes before the next wait, or once via [RunDetached] while
// an interrupt listener only observes.
package work

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"tools.zach/dev/sigloop/internal/interrupt"
)

// Unit is one piece of work.
type Unit interface {
	Do(ctx context.Context) error
}

// Func adapts a function to [Unit].
type Func func(ctx context.Context) error

// Do calls f.
func (f Func) Do(ctx context.Context) error { return f(ctx) }

// ///////////////////////////////////////////////
// Printer
// ///////////////////////////////////////////////

// Printer writes Message and a newline to W.
type Printer struct {
	W       io.Writer
	Message string
}

// Do prints the message.
func (p Printer) Do(context.Context) error {
	_, err := fmt.Fprintln(p.W, p.Message)
	return err
}

// ///////////////////////////////////////////////
// Sleep
// ///////////////////////////////////////////////

// Sleep is bounded work that waits D on Clock (the real clock when nil).
// It returns early only if ctx is cancelled.
type Sleep struct {
	D     time.Duration
	Clock clockwork.Clock
}

// Do waits for the configured duration.
func (s Sleep) Do(ctx context.Context) error {
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	select {
	case <-clock.After(s.D):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ///////////////////////////////////////////////
// Detached
// ///////////////////////////////////////////////

// RunDetached runs u once while a background [interrupt.Listener] passes every
// interrupt from n to onInterrupt. The notification neither cancels nor
// shortens u: completion is cooperative at best, and an interrupt arriving
// during u only gets reported. The listener is stopped before returning.
func RunDetached(ctx context.Context, u Unit, n *interrupt.Notifier, onInterrupt func(interrupt.Event)) error {
	l := interrupt.NewListener(n, onInterrupt)
	l.Start()
	defer l.Close()
	return u.Do(ctx)
}
