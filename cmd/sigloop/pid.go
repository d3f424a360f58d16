package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ///////////////////////////////////////////////
// Single Instance
// ///////////////////////////////////////////////

// errAlreadyRunning is returned by [acquireInstance] when another process
// holds the PID file lock.
var errAlreadyRunning = errors.New("already running")

// instance owns the PID file for the lifetime of a run. The file holds
// "PID:TOKEN"; the token proves ownership so [instance.release] never removes
// a file written by a newer daemon.
type instance struct {
	path  string
	token string
	f     *os.File
}

// maxLockAttempts bounds retries when the PID file is replaced between open
// and lock.
const maxLockAttempts = 5

// errPIDFileReplaced means the locked handle no longer names the file at the
// PID path: a releasing daemon unlinked it after we opened it.
var errPIDFileReplaced = errors.New("PID file replaced while locking")

// acquireInstance locks the PID file at path. A file left by a dead daemon
// is not locked and is simply taken over.
func acquireInstance(path string) (*instance, error) {
	for range maxLockAttempts {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open PID file: %w", err)
		}
		inst, err := claim(f, path)
		if errors.Is(err, errPIDFileReplaced) {
			continue
		}
		return inst, err
	}
	return nil, fmt.Errorf("%w: %v", errAlreadyRunning, errPIDFileReplaced)
}

// claim locks f, opened from path, and records our PID in it. The lock only
// counts if f is still the file at path. f is closed on any error.
func claim(f *os.File, path string) (*instance, error) {
	if err := lockFile(f); err != nil {
		f.Close()
		if pid := readPID(path); pid > 0 {
			return nil, fmt.Errorf("%w (pid %d)", errAlreadyRunning, pid)
		}
		return nil, fmt.Errorf("%w: %v", errAlreadyRunning, err)
	}
	if !samePath(f, path) {
		_ = unlockFile(f)
		f.Close()
		return nil, errPIDFileReplaced
	}

	inst := &instance{path: path, token: pidToken(), f: f}
	if err := inst.write(); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, err
	}
	return inst, nil
}

// samePath reports whether the open file f is the file currently at path.
func samePath(f *os.File, path string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, current)
}

func (i *instance) write() error {
	if err := i.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := i.f.WriteAt([]byte(fmt.Sprintf("%d:%s", os.Getpid(), i.token)), 0); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return i.f.Sync()
}

// release unlocks and closes the PID file, removing it if it is still ours.
func (i *instance) release() {
	// Read through the locked handle; Windows refuses reads of a locked
	// range from any other handle.
	buf := make([]byte, 64)
	n, _ := i.f.ReadAt(buf, 0)
	_ = unlockFile(i.f)
	i.f.Close()
	if _, token, ok := strings.Cut(string(buf[:n]), ":"); ok && token == i.token {
		os.Remove(i.path)
	}
}

// readPID returns the PID recorded at path, or 0 when unreadable.
func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	head, _, _ := strings.Cut(string(data), ":")
	pid, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return pid
}

// pidToken returns a random 16-character hex token.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
