// Package control exposes a local endpoint through which another process
// (typically `sigloop stop`) can request that a running daemon shut down.
//
// A stop request is just another interruption request: the server forwards it
// to a non-blocking trigger, normally [interrupt.Notifier.Trigger], so it
// travels the same path as Ctrl+C.
//
// Protocol: the client sends one line ("stop" or "ping") and reads one line
// back ("ok" or "error: ...").
package control

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// ioTimeout bounds each request/response exchange.
const ioTimeout = 2 * time.Second

// ErrRejected is returned by the client when the server answers with an error.
var ErrRejected = errors.New("control request rejected")

// ///////////////////////////////////////////////
// Server
// ///////////////////////////////////////////////

// Server accepts control requests on a local socket or named pipe.
type Server struct {
	ln      net.Listener
	addr    string
	trigger func() bool
	logger  *slog.Logger
	once    sync.Once
	closed  chan struct{}
}

// Listen opens the control endpoint at address. trigger is called once per
// stop request and must not block.
func Listen(address string, trigger func() bool) (*Server, error) {
	ln, err := listen(address)
	if err != nil {
		return nil, fmt.Errorf("listen on control endpoint %s: %w", address, err)
	}
	return &Server{
		ln:      ln,
		addr:    address,
		trigger: trigger,
		logger:  slog.Default(),
		closed:  make(chan struct{}),
	}, nil
}

// Addr returns the endpoint address.
func (s *Server) Addr() string {
	return s.addr
}

// Serve handles requests one at a time until [Server.Close]. It returns nil
// after Close and the accept error otherwise.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}
		s.handle(conn)
	}
}

// Close stops accepting requests. It is idempotent.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.ln.Close()
		cleanup(s.addr)
	})
	return err
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		s.logger.Debug("control request unreadable", "error", err)
		return
	}

	var reply string
	switch cmd := strings.TrimSpace(line); cmd {
	case "stop":
		if s.trigger() {
			s.logger.Info("stop requested via control endpoint")
		} else {
			s.logger.Debug("stop request coalesced with a pending interrupt")
		}
		reply = "ok"
	case "ping":
		reply = "ok"
	default:
		reply = fmt.Sprintf("error: unknown command %q", cmd)
	}
	_, _ = fmt.Fprintln(conn, reply)
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Stop asks the daemon listening at address to shut down.
func Stop(address string) error {
	return request(address, "stop")
}

// Ping reports whether a daemon is listening at address.
func Ping(address string) error {
	return request(address, "ping")
}

func request(address, cmd string) error {
	conn, err := dial(address, ioTimeout)
	if err != nil {
		return fmt.Errorf("connect to control endpoint %s: %w", address, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	if _, err := fmt.Fprintln(conn, cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read %s reply: %w", cmd, err)
	}
	if reply = strings.TrimSpace(reply); reply != "ok" {
		return fmt.Errorf("%w: %s", ErrRejected, reply)
	}
	return nil
}
