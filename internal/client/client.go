// Package client provides the typed control-channel client used by the CLI
// and by consumer processes. It wraps a raw channel with the handshake and
// request/response pairing so callers work with results, not envelopes.
package client

import (
	"errors"
	"fmt"
	"time"

	"periscope/internal/config"
	"periscope/internal/ipc"
	"periscope/internal/shm"
	"periscope/internal/wire"
)

// ErrRejected reports a daemon-side refusal: a failed handshake or a denied
// producer claim. The wrapped message carries the daemon's reason.
var ErrRejected = errors.New("client: request rejected")

// maxInterleaved bounds how many unrelated messages a response wait skips.
// Telemetry from the daemon may interleave with a pending reply.
const maxInterleaved = 16

// Client is a registered control session.
type Client struct {
	ch     ipc.Channel
	peerID string
	role   wire.Role
	hbSeq  uint64
}

// Connect dials the daemon's unix socket and completes the handshake.
func Connect(cfg *config.Config, role wire.Role, name string) (*Client, error) {
	timeout := time.Duration(cfg.Channel.ConnectTimeoutMS) * time.Millisecond
	ch, err := ipc.Dial(cfg.SocketPath(), timeout)
	if err != nil {
		return nil, err
	}
	return Attach(ch, role, name)
}

// ConnectWebSocket reaches a remote daemon through its bridge endpoint,
// e.g. ws://host:9211/channel.
func ConnectWebSocket(url string, role wire.Role, name string, timeout time.Duration) (*Client, error) {
	ch, err := ipc.DialWebSocket(url, timeout)
	if err != nil {
		return nil, err
	}
	return Attach(ch, role, name)
}

// Attach performs the handshake on an already-established channel and takes
// ownership of it. The channel is closed on handshake failure.
func Attach(ch ipc.Channel, role wire.Role, name string) (*Client, error) {
	hello := wire.Hello{Role: role, Schema: shm.SchemaVersion, Name: name}
	if err := ch.Send(hello); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}
	reply, err := ch.Receive()
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("await hello ack: %w", err)
	}
	ack, ok := reply.(wire.HelloAck)
	if !ok {
		_ = ch.Close()
		return nil, fmt.Errorf("handshake answered with %s, not hello_ack", reply.Tag())
	}
	if !ack.Accepted {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", ack.Reason, ErrRejected)
	}
	return &Client{ch: ch, peerID: ack.PeerID, role: role}, nil
}

// PeerID returns the daemon-assigned session identifier.
func (c *Client) PeerID() string { return c.peerID }

// Channel exposes the underlying channel for lower-level use such as clock
// sampling loops.
func (c *Client) Channel() ipc.Channel { return c.ch }

// Close ends the session.
func (c *Client) Close() error { return c.ch.Close() }

// Status fetches the daemon's aggregated state snapshot.
func (c *Client) Status() (wire.StateSnapshot, error) {
	if err := c.ch.Send(wire.StateQuery{}); err != nil {
		return wire.StateSnapshot{}, err
	}
	var snap wire.StateSnapshot
	err := c.await(func(m wire.Message) bool {
		s, ok := m.(wire.StateSnapshot)
		if ok {
			snap = s
		}
		return ok
	})
	return snap, err
}

// Peers fetches the connected-session list.
func (c *Client) Peers() ([]wire.PeerInfo, error) {
	snap, err := c.Status()
	if err != nil {
		return nil, err
	}
	return snap.Peers, nil
}

// ClockProbe runs one ping/pong exchange against the daemon and returns the
// three timestamps of the sample: local send, daemon receive, local receive.
func (c *Client) ClockProbe() (t0, t1, t2 time.Time, err error) {
	t0 = time.Now()
	if sendErr := c.ch.Send(wire.TimePing{T0: t0.UnixNano()}); sendErr != nil {
		return t0, t1, t2, sendErr
	}
	err = c.await(func(m wire.Message) bool {
		pong, ok := m.(wire.TimePong)
		if !ok || pong.T0 != t0.UnixNano() {
			return false
		}
		t1 = time.Unix(0, pong.T1)
		return true
	})
	t2 = time.Now()
	return t0, t1, t2, err
}

// Claim requests primary-producer status. A denial returns ErrRejected with
// the daemon's reason.
func (c *Client) Claim() error {
	if err := c.ch.Send(wire.ClaimProducer{}); err != nil {
		return err
	}
	var result wire.ClaimResult
	err := c.await(func(m wire.Message) bool {
		r, ok := m.(wire.ClaimResult)
		if ok {
			result = r
		}
		return ok
	})
	if err != nil {
		return err
	}
	if !result.Granted {
		return fmt.Errorf("%s: %w", result.Reason, ErrRejected)
	}
	return nil
}

// Release gives up primary-producer status. The daemon does not answer.
func (c *Client) Release() error {
	return c.ch.Send(wire.ReleaseProducer{})
}

// Heartbeat sends the periodic liveness beacon with an increasing sequence.
func (c *Client) Heartbeat() error {
	c.hbSeq++
	return c.ch.Send(wire.Heartbeat{Seq: c.hbSeq, SentAt: time.Now().UnixNano()})
}

// Publish sends one telemetry message (ScreenRect, AnimationUpdate,
// AudioState) to the daemon's aggregated state.
func (c *Client) Publish(m wire.Message) error {
	return c.ch.Send(m)
}

// Command runs a named daemon operation and returns its result.
func (c *Client) Command(op string, args ...string) (wire.CommandResult, error) {
	if err := c.ch.Send(wire.Command{Op: op, Args: args}); err != nil {
		return wire.CommandResult{}, err
	}
	var result wire.CommandResult
	err := c.await(func(m wire.Message) bool {
		r, ok := m.(wire.CommandResult)
		if ok {
			result = r
		}
		return ok
	})
	return result, err
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() error {
	result, err := c.Command("stop")
	if err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("%s: %w", result.Detail, ErrRejected)
	}
	return nil
}

// await reads until match consumes a message, skipping a bounded number of
// interleaved ones.
func (c *Client) await(match func(wire.Message) bool) error {
	for skipped := 0; skipped <= maxInterleaved; skipped++ {
		m, err := c.ch.Receive()
		if err != nil {
			if errors.Is(err, wire.ErrChecksumMismatch) || errors.Is(err, wire.ErrUnknownMessageType) {
				continue
			}
			return err
		}
		if match(m) {
			return nil
		}
	}
	return fmt.Errorf("no response within %d messages: %w", maxInterleaved, ipc.ErrTimeout)
}
