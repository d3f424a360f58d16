// Windows control endpoint: a named pipe (\\.\pipe\sigloop-<user>) served
// and dialled through go-winio.

//go:build windows

package control

import (
	"net"
	"os"
	"strings"
	"time"

	"github.com/Microsoft/go-winio"
)

// DefaultAddress returns the per-user control pipe name. Named pipes live in
// a global namespace, so dataDir is not part of the address.
func DefaultAddress(dataDir string) string {
	user := os.Getenv("USERNAME")
	if user == "" {
		user = "default"
	}
	return `\\.\pipe\sigloop-` + strings.ToLower(user)
}

func listen(address string) (net.Listener, error) {
	return winio.ListenPipe(address, nil)
}

func dial(address string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(address, &timeout)
}

// cleanup is a no-op: pipes disappear with their last handle.
func cleanup(string) {}
