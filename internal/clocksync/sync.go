package clocksync

import (
	"fmt"
	"time"

	"periscope/internal/ipc"
	"periscope/internal/wire"
)

// maxInterleaved bounds how many unrelated messages SyncOnce will skip while
// waiting for its pong. The channel preserves order, so anything beyond this
// means the peer is not answering pings at all.
const maxInterleaved = 16

// SyncOnce performs one ping/pong round trip over the channel and feeds the
// resulting sample into the estimator. The caller must own the channel's
// receive side for the duration of the call.
func SyncOnce(ch ipc.Channel, est *Estimator) error {
	t0 := time.Now()
	if err := ch.Send(wire.TimePing{T0: t0.UnixNano()}); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}

	for skipped := 0; skipped <= maxInterleaved; skipped++ {
		m, err := ch.Receive()
		if err != nil {
			return fmt.Errorf("await pong: %w", err)
		}
		pong, ok := m.(wire.TimePong)
		if !ok {
			// Telemetry interleaved ahead of our pong; not ours to handle.
			continue
		}
		if pong.T0 != t0.UnixNano() {
			// Stale pong from an earlier, timed-out exchange.
			continue
		}
		t2 := time.Now()
		return est.AddSample(t0, time.Unix(0, pong.T1), t2)
	}
	return fmt.Errorf("no pong within %d messages: %w", maxInterleaved, ErrExcessiveVariance)
}
