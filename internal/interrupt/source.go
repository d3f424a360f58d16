package interrupt

import (
	"os"
	"os/signal"
)

// Source abstracts the OS signal facility so tests can inject signals.
type Source interface {
	// Notify starts relaying the given signals to c. An error means the
	// facility rejected the registration.
	Notify(c chan<- os.Signal, sigs ...os.Signal) error
	// Stop ends relaying to c.
	Stop(c chan<- os.Signal)
}

// OSSource relays real process signals through [os/signal].
type OSSource struct{}

// Notify registers c with [signal.Notify].
func (OSSource) Notify(c chan<- os.Signal, sigs ...os.Signal) error {
	if len(sigs) == 0 {
		return ErrNoSignals
	}
	signal.Notify(c, sigs...)
	return nil
}

// Stop unregisters c with [signal.Stop].
func (OSSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}
