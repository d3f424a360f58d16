// Unix/Darwin interrupt signal set.
//
// SIGINT is Ctrl+C at a terminal; SIGTERM is what process managers (systemd,
// launchd) and container runtimes send to request a graceful stop.

//go:build !windows

package interrupt

import (
	"os"

	"golang.org/x/sys/unix"
)

// DefaultSignals returns the signals treated as an interruption request:
// SIGINT and SIGTERM.
func DefaultSignals() []os.Signal {
	return []os.Signal{os.Interrupt, unix.SIGTERM}
}
