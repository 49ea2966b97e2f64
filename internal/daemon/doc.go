// Package daemon coordinates the periscope data plane.
//
// The daemon owns the shared-memory segment, accepts control channels from
// the unix socket listener and the WebSocket bridge, tracks one session per
// connected peer, and arbitrates which producer may write frames. Each peer
// runs on its own goroutine; a misbehaving or crashing peer tears down only
// its own session and never stalls the listener or other peers.
//
// Producer arbitration is deliberately simple: the first producer-role
// session to claim primary status holds it until it releases or
// disconnects, and every competing claim is rejected outright rather than
// queued. Queuing would create an ambiguous hand-off window in which two
// processes both believe they own the segment.
package daemon
