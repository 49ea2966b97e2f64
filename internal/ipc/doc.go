// Package ipc provides the bidirectional control channel between the daemon
// and its peers.
//
// Every channel carries wire protocol envelopes, so framing and integrity
// checking are identical regardless of the transport underneath. The primary
// backend is a unix domain socket; a WebSocket backend serves remote
// consumer clients over the same message contract.
//
// A channel moves Disconnected -> Connecting -> Connected and falls back to
// Disconnected on any I/O failure. It never reconnects on its own: callers
// poll Dial on their own schedule, which keeps blocking behavior explicit
// and local to the caller.
package ipc
