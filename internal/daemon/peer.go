package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"periscope/internal/ipc"
	"periscope/internal/journal"
	"periscope/internal/logging"
	"periscope/internal/shm"
	"periscope/internal/wire"
)

// servePeer owns one control channel from handshake to teardown. It returns
// when the channel dies or the daemon shuts down; either way only this
// session is affected.
func (d *Daemon) servePeer(ch ipc.Channel) {
	defer ch.Close()

	session, err := d.handshake(ch)
	if err != nil {
		d.logger.Debug("handshake rejected",
			logging.String("remote", ch.RemoteLabel()),
			logging.Error(err))
		return
	}

	log := d.logger.With(
		logging.String(logging.FieldPeerID, session.ID),
		logging.String(logging.FieldRole, session.Role.String()))
	log.Info("peer registered", logging.String("name", session.Name))
	d.record(journal.Event{
		PeerID:   session.ID,
		PeerName: session.Name,
		Role:     session.Role.String(),
		Kind:     journal.EventRegistered,
	})

	defer func() {
		wasPrimary := d.sessions.remove(session.ID)
		if wasPrimary {
			log.Info("primary producer departed, claim freed")
			d.record(journal.Event{
				PeerID: session.ID,
				Role:   session.Role.String(),
				Kind:   journal.EventReleased,
				Detail: "freed on disconnect",
			})
		}
		log.Info("peer disconnected", logging.String("name", session.Name))
		d.record(journal.Event{
			PeerID:   session.ID,
			PeerName: session.Name,
			Role:     session.Role.String(),
			Kind:     journal.EventDisconnected,
		})
	}()

	for {
		m, err := ch.Receive()
		if err != nil {
			if errors.Is(err, ipc.ErrClosed) {
				return
			}
			if errors.Is(err, wire.ErrChecksumMismatch) || errors.Is(err, wire.ErrUnknownMessageType) {
				// Stream is still framed; drop the one bad envelope.
				log.Debug("discarded malformed message", logging.Error(err))
				continue
			}
			log.Warn("receive failed, dropping session", logging.Error(err))
			return
		}
		if err := d.dispatch(session, ch, log, m); err != nil {
			log.Warn("send failed, dropping session", logging.Error(err))
			return
		}
	}
}

// handshake enforces that the first message is a compatible Hello and
// assigns the session its peer ID.
func (d *Daemon) handshake(ch ipc.Channel) (*Session, error) {
	first, err := ch.Receive()
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	hello, ok := first.(wire.Hello)
	if !ok {
		_ = ch.Send(wire.HelloAck{Reason: "expected hello"})
		return nil, fmt.Errorf("first message was %s, not hello", first.Tag())
	}
	if hello.Role != wire.RoleProducer && hello.Role != wire.RoleConsumer {
		_ = ch.Send(wire.HelloAck{Reason: "unknown role"})
		d.record(journal.Event{PeerName: hello.Name, Kind: journal.EventRejected, Detail: "unknown role"})
		return nil, fmt.Errorf("unknown role %d", hello.Role)
	}
	if hello.Schema != shm.SchemaVersion {
		reason := fmt.Sprintf("segment schema %d, daemon has %d", hello.Schema, shm.SchemaVersion)
		_ = ch.Send(wire.HelloAck{Reason: reason})
		d.record(journal.Event{
			PeerName: hello.Name,
			Role:     hello.Role.String(),
			Kind:     journal.EventRejected,
			Detail:   reason,
		})
		return nil, errors.New(reason)
	}

	session := &Session{
		ID:       uuid.NewString(),
		Name:     hello.Name,
		Role:     hello.Role,
		State:    SessionRegistered,
		LastSeen: time.Now(),
		channel:  ch,
	}
	d.sessions.add(session)
	if err := ch.Send(wire.HelloAck{Accepted: true, PeerID: session.ID}); err != nil {
		d.sessions.remove(session.ID)
		return nil, fmt.Errorf("send hello ack: %w", err)
	}
	return session, nil
}

// dispatch handles one registered-session message. A returned error means
// the channel is unusable and the session must be torn down; protocol-level
// refusals are answered in-band instead.
func (d *Daemon) dispatch(session *Session, ch ipc.Channel, log *slog.Logger, m wire.Message) error {
	switch msg := m.(type) {
	case wire.Heartbeat:
		d.sessions.touch(session.ID, true)

	case wire.TimePing:
		// The daemon is the time authority: answer with its own receive
		// timestamp so peers estimate their offset against it.
		d.sessions.touch(session.ID, false)
		return ch.Send(wire.TimePong{T0: msg.T0, T1: time.Now().UnixNano()})

	case wire.ClaimProducer:
		d.sessions.touch(session.ID, false)
		granted, reason := d.sessions.claimPrimary(session.ID)
		if granted {
			log.Info("primary producer claim granted")
			d.record(journal.Event{PeerID: session.ID, Role: session.Role.String(), Kind: journal.EventClaimGranted})
		} else {
			log.Info("primary producer claim rejected", logging.String("reason", reason))
			d.record(journal.Event{PeerID: session.ID, Role: session.Role.String(), Kind: journal.EventClaimRejected, Detail: reason})
		}
		return ch.Send(wire.ClaimResult{Granted: granted, Reason: reason})

	case wire.ReleaseProducer:
		d.sessions.touch(session.ID, false)
		if d.sessions.releasePrimary(session.ID) {
			log.Info("primary producer released")
			d.record(journal.Event{PeerID: session.ID, Role: session.Role.String(), Kind: journal.EventReleased})
		}

	case wire.ScreenRect:
		d.sessions.touch(session.ID, true)
		d.state.mu.Lock()
		d.state.rect = msg
		d.state.rectValid = true
		d.state.mu.Unlock()

	case wire.AnimationUpdate:
		d.sessions.touch(session.ID, true)
		d.state.mu.Lock()
		d.state.anim = msg
		d.state.animValid = true
		d.state.mu.Unlock()

	case wire.AudioState:
		d.sessions.touch(session.ID, true)
		d.state.mu.Lock()
		d.state.audio = msg
		d.state.audioValid = true
		d.state.mu.Unlock()

	case wire.StateQuery:
		d.sessions.touch(session.ID, false)
		return ch.Send(d.snapshot())

	case wire.Command:
		d.sessions.touch(session.ID, false)
		return ch.Send(d.runCommand(log, msg))

	case wire.Unknown:
		// Forward-compatibility: newer peers may emit telemetry this build
		// does not parse yet.
		log.Debug("ignoring unrecognized message", logging.String("type", msg.TypeTag.String()))
		d.sessions.touch(session.ID, false)

	default:
		log.Debug("ignoring unexpected message", logging.String("type", m.Tag().String()))
	}
	return nil
}

func (d *Daemon) runCommand(log *slog.Logger, cmd wire.Command) wire.CommandResult {
	switch cmd.Op {
	case "ping":
		return wire.CommandResult{OK: true, Detail: "pong"}
	case "stop":
		log.Info("stop requested over control channel")
		d.stopReqOnce.Do(func() { close(d.stopRequested) })
		return wire.CommandResult{OK: true, Detail: "stopping"}
	default:
		return wire.CommandResult{OK: false, Detail: fmt.Sprintf("unknown command %q", cmd.Op)}
	}
}
