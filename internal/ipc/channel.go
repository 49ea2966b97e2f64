package ipc

import (
	"errors"

	"periscope/internal/wire"
)

// State is the lifecycle state of a channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "invalid"
	}
}

// Transport failures surfaced to callers.
var (
	ErrNotFound      = errors.New("ipc: endpoint not found")
	ErrConnectFailed = errors.New("ipc: connect failed")
	ErrTimeout       = errors.New("ipc: connect timed out")
	ErrClosed        = errors.New("ipc: channel closed")
)

// Channel is one bidirectional control connection. Send is safe for
// concurrent use; Receive must be called from a single goroutine and blocks
// until a full envelope arrives or the connection closes. Within one channel
// message order is preserved end to end.
type Channel interface {
	Send(m wire.Message) error
	Receive() (wire.Message, error)
	Close() error
	State() State

	// RemoteLabel identifies the peer endpoint for logs.
	RemoteLabel() string
}
