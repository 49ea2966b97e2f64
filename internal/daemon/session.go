package daemon

import (
	"sync"
	"time"

	"periscope/internal/ipc"
	"periscope/internal/wire"
)

// SessionState is the per-peer lifecycle state.
type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionRegistered
	SessionStreaming
	SessionDisconnected
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionRegistered:
		return "registered"
	case SessionStreaming:
		return "streaming"
	case SessionDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

// Session tracks one connected peer. Fields are guarded by the registry
// mutex; the owning peer goroutine mutates them through registry methods.
type Session struct {
	ID       string
	Name     string
	Role     wire.Role
	State    SessionState
	Primary  bool
	LastSeen time.Time

	channel ipc.Channel
}

// registry is the daemon-owned session table. All primary-producer state
// lives here rather than in package globals, so arbitration decisions are
// serialized by one mutex.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	primary  string
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*Session)}
}

func (r *registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// remove drops the session and frees primary-producer status if it held it.
// It reports whether the departing session was primary.
func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return false
	}
	session.State = SessionDisconnected
	delete(r.sessions, id)
	if r.primary == id {
		r.primary = ""
		return true
	}
	return false
}

// claimPrimary grants primary-producer status unless another live session
// already holds it. Claims are never queued.
func (r *registry) claimPrimary(id string) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return false, "unknown session"
	}
	if session.Role != wire.RoleProducer {
		return false, "consumer sessions cannot claim producer status"
	}
	if r.primary != "" && r.primary != id {
		return false, "not primary: another producer holds the segment"
	}
	r.primary = id
	session.Primary = true
	return true, ""
}

// releasePrimary frees primary status if the session holds it.
func (r *registry) releasePrimary(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.primary != id {
		return false
	}
	r.primary = ""
	if session, ok := r.sessions[id]; ok {
		session.Primary = false
	}
	return true
}

func (r *registry) primaryID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.primary
}

// touch refreshes liveness and promotes a registered session to streaming
// once traffic flows.
func (r *registry) touch(id string, streaming bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return
	}
	session.LastSeen = time.Now()
	if streaming && session.State == SessionRegistered {
		session.State = SessionStreaming
	}
}

// peers returns a snapshot of all sessions for status reporting.
func (r *registry) peers() []wire.PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]wire.PeerInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, wire.PeerInfo{
			ID:       s.ID,
			Name:     s.Name,
			Role:     s.Role,
			State:    s.State.String(),
			Primary:  s.Primary,
			LastSeen: s.LastSeen.UnixNano(),
		})
	}
	return infos
}

// expired returns sessions whose heartbeat lapsed past the timeout.
func (r *registry) expired(timeout time.Duration) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-timeout)
	var stale []*Session
	for _, s := range r.sessions {
		if s.LastSeen.Before(cutoff) {
			stale = append(stale, s)
		}
	}
	return stale
}
