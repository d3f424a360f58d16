// Windows interrupt signal set.
//
// Windows has no SIGTERM. The Go runtime maps CTRL_C_EVENT, CTRL_BREAK_EVENT
// and console-close events to os.Interrupt, which covers shutdown requests.

//go:build windows

package interrupt

import "os"

// DefaultSignals returns the signals treated as an interruption request:
// os.Interrupt only.
func DefaultSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
