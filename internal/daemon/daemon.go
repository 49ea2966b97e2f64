package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"periscope/internal/config"
	"periscope/internal/ipc"
	"periscope/internal/journal"
	"periscope/internal/logging"
	"periscope/internal/shm"
	"periscope/internal/wire"
)

// ErrAlreadyRunning is returned when another daemon instance holds the lock.
var ErrAlreadyRunning = errors.New("daemon: another instance is already running")

// sharedState is the daemon-side aggregate of producer telemetry, served to
// consumers through StateQuery.
type sharedState struct {
	mu         sync.Mutex
	rect       wire.ScreenRect
	rectValid  bool
	anim       wire.AnimationUpdate
	animValid  bool
	audio      wire.AudioState
	audioValid bool
}

// Daemon owns the shared-memory segment and the control listener, and runs
// one goroutine per connected peer.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	journal *journal.Store

	writer   *shm.Writer
	listener *ipc.Listener
	bridge   *bridge
	lock     *flock.Flock

	sessions *registry
	state    sharedState

	// conns tracks every attached channel, handshaken or not, so shutdown
	// can unblock peer goroutines still waiting in Receive.
	connsMu sync.Mutex
	conns   map[ipc.Channel]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce    sync.Once
	stopReqOnce sync.Once
	// stopRequested is closed when a peer issues the stop command; the run
	// layer waits on it alongside signals.
	stopRequested chan struct{}
}

// New constructs a daemon. The journal store may be nil when journaling is
// disabled.
func New(cfg *config.Config, logger *slog.Logger, store *journal.Store) *Daemon {
	return &Daemon{
		cfg:           cfg,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		journal:       store,
		sessions:      newRegistry(),
		conns:         make(map[ipc.Channel]struct{}),
		stopRequested: make(chan struct{}),
	}
}

// Start acquires the single-instance lock, creates the segment, and begins
// accepting control channels. It returns once the daemon is serving.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	d.lock = flock.New(d.cfg.LockPath())
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}

	writer, err := shm.Create(d.cfg.Segment.Name, uint32(d.cfg.Segment.SlotCapacity))
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("create segment: %w", err)
	}
	d.writer = writer

	listener, err := ipc.Listen(d.cfg.SocketPath())
	if err != nil {
		_ = writer.Destroy()
		_ = d.lock.Unlock()
		return fmt.Errorf("bind control socket: %w", err)
	}
	d.listener = listener

	d.ctx, d.cancel = context.WithCancel(ctx)

	d.logger.Info("daemon serving",
		logging.String(logging.FieldSegment, d.cfg.Segment.Name),
		logging.String("socket", listener.Path()),
		logging.Int("slot_capacity", d.cfg.Segment.SlotCapacity))

	d.wg.Add(2)
	go d.acceptLoop()
	go d.reapLoop()

	if d.cfg.Channel.BridgeEnabled {
		br, err := startBridge(d, d.cfg.Channel.BridgeBind)
		if err != nil {
			d.Stop()
			return fmt.Errorf("start bridge: %w", err)
		}
		d.bridge = br
	}
	return nil
}

// BridgeAddr returns the bound WebSocket bridge address, or "" when the
// bridge is disabled. Useful when the configured bind is ":0".
func (d *Daemon) BridgeAddr() string {
	if d.bridge == nil {
		return ""
	}
	return d.bridge.addr()
}

// StopRequested signals when a peer-issued stop command arrives.
func (d *Daemon) StopRequested() <-chan struct{} { return d.stopRequested }

// Stop tears the daemon down: stops accepting, closes every session, and
// removes the segment, socket, and lock.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("daemon stopping")
		if d.cancel != nil {
			d.cancel()
		}
		if d.bridge != nil {
			d.bridge.close()
		}
		if d.listener != nil {
			_ = d.listener.Close()
		}
		d.connsMu.Lock()
		for ch := range d.conns {
			_ = ch.Close()
		}
		d.connsMu.Unlock()
		d.wg.Wait()
		if d.writer != nil {
			if err := d.writer.Destroy(); err != nil {
				d.logger.Warn("destroy segment", logging.Error(err))
			}
		}
		if d.lock != nil {
			_ = d.lock.Unlock()
		}
	})
}

func (d *Daemon) acceptLoop() {
	defer d.wg.Done()
	for {
		ch, err := d.listener.Accept()
		if err != nil {
			if errors.Is(err, ipc.ErrClosed) || d.ctx.Err() != nil {
				return
			}
			d.logger.Warn("accept failed", logging.Error(err))
			continue
		}
		d.AttachChannel(ch)
	}
}

// AttachChannel hands an established control channel to its own session
// goroutine. Both the socket listener and the WebSocket bridge feed here.
func (d *Daemon) AttachChannel(ch ipc.Channel) {
	d.connsMu.Lock()
	d.conns[ch] = struct{}{}
	d.connsMu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.connsMu.Lock()
			delete(d.conns, ch)
			d.connsMu.Unlock()
		}()
		d.servePeer(ch)
	}()
}

// reapLoop disconnects sessions whose heartbeats lapsed. A crashed peer that
// never closes its socket is still cleaned up, which also frees a wedged
// primary-producer claim.
func (d *Daemon) reapLoop() {
	defer d.wg.Done()
	timeout := time.Duration(d.cfg.Session.HeartbeatTimeoutS) * time.Second
	interval := time.Duration(d.cfg.Session.HeartbeatIntervalS) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			for _, session := range d.sessions.expired(timeout) {
				d.logger.Warn("session heartbeat lapsed",
					logging.String(logging.FieldPeerID, session.ID),
					logging.String("name", session.Name))
				// Closing the channel unblocks the peer goroutine, which
				// performs the full teardown.
				_ = session.channel.Close()
			}
		}
	}
}

// snapshot assembles the aggregated daemon state for a StateQuery.
func (d *Daemon) snapshot() wire.StateSnapshot {
	d.state.mu.Lock()
	snap := wire.StateSnapshot{
		Rect:       d.state.rect,
		RectValid:  d.state.rectValid,
		Anim:       d.state.anim,
		AnimValid:  d.state.animValid,
		Audio:      d.state.audio,
		AudioValid: d.state.audioValid,
	}
	d.state.mu.Unlock()

	snap.ProducerID = d.sessions.primaryID()
	snap.DroppedFrames = d.writer.Dropped()
	snap.Peers = d.sessions.peers()
	return snap
}

func (d *Daemon) record(event journal.Event) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Record(context.Background(), event); err != nil {
		d.logger.Warn("journal record failed", logging.Error(err))
	}
}
