// Unix control endpoint: a unix domain socket, normally inside the data
// directory.

//go:build !windows

package control

import (
	"net"
	"os"
	"path/filepath"
	"time"
)

// SocketFile is the control socket name inside the data directory.
const SocketFile = "sigloop.sock"

// DefaultAddress returns the control socket path for dataDir.
func DefaultAddress(dataDir string) string {
	return filepath.Join(dataDir, SocketFile)
}

// listen binds the socket, replacing a stale file left by a crashed daemon.
// A socket that still accepts connections belongs to a live daemon and is
// left alone, so the bind fails.
func listen(address string) (net.Listener, error) {
	if _, err := os.Stat(address); err == nil {
		if conn, dialErr := net.DialTimeout("unix", address, 200*time.Millisecond); dialErr == nil {
			conn.Close()
		} else {
			os.Remove(address)
		}
	}
	return net.Listen("unix", address)
}

func dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", address, timeout)
}

// cleanup removes the socket file after the listener closes.
func cleanup(address string) {
	os.Remove(address)
}
