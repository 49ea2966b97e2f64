package ipc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"periscope/internal/wire"
)

// DefaultDialTimeout bounds the Connecting state. Local sockets either
// answer immediately or the daemon is not there; callers poll on their own
// schedule rather than waiting.
const DefaultDialTimeout = 100 * time.Millisecond

// Dial connects to the unix socket at path. A zero timeout uses
// DefaultDialTimeout.
func Dial(path string, timeout time.Duration) (Channel, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, classifyDialError(path, err)
	}
	return newStreamChannel(conn), nil
}

func classifyDialError(path string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("socket %s: %w", path, ErrNotFound)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("socket %s: %w", path, ErrTimeout)
	default:
		return fmt.Errorf("socket %s: %v: %w", path, err, ErrConnectFailed)
	}
}

// streamChannel frames wire envelopes over any stream-oriented net.Conn.
type streamChannel struct {
	conn  net.Conn
	state atomic.Int32

	sendMu sync.Mutex
}

func newStreamChannel(conn net.Conn) *streamChannel {
	ch := &streamChannel{conn: conn}
	ch.state.Store(int32(StateConnected))
	return ch
}

func (c *streamChannel) State() State { return State(c.state.Load()) }

func (c *streamChannel) RemoteLabel() string {
	if addr := c.conn.RemoteAddr(); addr != nil && addr.String() != "" && addr.String() != "@" {
		return addr.String()
	}
	return c.conn.LocalAddr().Network()
}

func (c *streamChannel) Send(m wire.Message) error {
	if c.State() != StateConnected {
		return ErrClosed
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := wire.WriteMessage(c.conn, m); err != nil {
		c.drop()
		return c.mapIOError(err)
	}
	return nil
}

func (c *streamChannel) Receive() (wire.Message, error) {
	if c.State() != StateConnected {
		return nil, ErrClosed
	}
	m, err := wire.ReadMessage(c.conn)
	if err != nil {
		if recoverableProtocolError(err) {
			// The envelope was fully consumed, so the stream is still
			// aligned on a header boundary; only this message is lost.
			return nil, err
		}
		c.drop()
		return nil, c.mapIOError(err)
	}
	return m, nil
}

func (c *streamChannel) Close() error {
	c.drop()
	return c.conn.Close()
}

func (c *streamChannel) drop() {
	c.state.Store(int32(StateDisconnected))
}

func (c *streamChannel) mapIOError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return ErrClosed
	}
	return err
}

// recoverableProtocolError reports whether a decode failure left the stream
// usable. A checksum or unknown-type failure consumed exactly one envelope;
// magic, version, and length failures mean the framing itself is lost.
func recoverableProtocolError(err error) bool {
	return errors.Is(err, wire.ErrChecksumMismatch) || errors.Is(err, wire.ErrUnknownMessageType)
}

// Listener accepts inbound channels on a unix socket.
type Listener struct {
	path     string
	listener net.Listener
}

// Listen binds the unix socket at path, replacing any stale socket file left
// behind by a previous run.
func Listen(path string) (*Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %v: %w", path, err, ErrConnectFailed)
	}
	return &Listener{path: path, listener: ln}, nil
}

// Accept blocks until the next inbound connection or the listener closes.
func (l *Listener) Accept() (Channel, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return newStreamChannel(conn), nil
}

// Path returns the bound socket path.
func (l *Listener) Path() string { return l.path }

// Close stops accepting and removes the socket file.
func (l *Listener) Close() error {
	err := l.listener.Close()
	if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}
