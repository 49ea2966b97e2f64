package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// decodePayload dispatches on the type tag after the envelope itself has
// validated. Unknown non-critical tags pass through; unknown critical tags
// are protocol errors because the handshake cannot proceed without them.
func decodePayload(tag Type, payload []byte) (Message, error) {
	r := payloadReader{buf: payload}
	var m Message
	switch tag {
	case TypeHello:
		m = Hello{Role: Role(r.u8()), Schema: r.u32(), Name: r.str()}
	case TypeHelloAck:
		m = HelloAck{Accepted: r.boolean(), PeerID: r.str(), Reason: r.str()}
	case TypeClaimProducer:
		m = ClaimProducer{}
	case TypeClaimResult:
		m = ClaimResult{Granted: r.boolean(), Reason: r.str()}
	case TypeReleaseProducer:
		m = ReleaseProducer{}
	case TypeTimePing:
		m = TimePing{T0: r.i64()}
	case TypeTimePong:
		m = TimePong{T0: r.i64(), T1: r.i64()}
	case TypeCommand:
		cmd := Command{Op: r.str()}
		n := int(r.u16())
		if n > 0 && r.err == nil {
			cmd.Args = make([]string, 0, n)
			for i := 0; i < n && r.err == nil; i++ {
				cmd.Args = append(cmd.Args, r.str())
			}
		}
		m = cmd
	case TypeCommandResult:
		m = CommandResult{OK: r.boolean(), Detail: r.str()}
	case TypeStateQuery:
		m = StateQuery{}
	case TypeStateSnapshot:
		m = r.snapshot()
	case TypeHeartbeat:
		m = Heartbeat{Seq: r.u64(), SentAt: r.i64()}
	case TypeScreenRect:
		m = r.screenRect()
	case TypeAnimationUpdate:
		m = AnimationUpdate{Track: r.u32(), Frame: r.u32(), Playing: r.boolean(), Speed: r.f32()}
	case TypeAudioState:
		m = r.audioState()
	default:
		if tag.Critical() {
			return nil, fmt.Errorf("critical tag %#x: %w", uint32(tag), ErrUnknownMessageType)
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		return Unknown{TypeTag: tag, Payload: cp}, nil
	}
	if r.err != nil {
		return nil, fmt.Errorf("%s payload: %w", tag, r.err)
	}
	if r.off != len(r.buf) {
		return nil, fmt.Errorf("%s payload has %d trailing bytes: %w", tag, len(r.buf)-r.off, ErrLengthMismatch)
	}
	return m, nil
}

type payloadReader struct {
	buf []byte
	off int
	err error
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("need %d bytes at offset %d of %d: %w", n, r.off, len(r.buf), ErrLengthMismatch)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *payloadReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *payloadReader) boolean() bool { return r.u8() != 0 }

func (r *payloadReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *payloadReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *payloadReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *payloadReader) i64() int64 { return int64(r.u64()) }

func (r *payloadReader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *payloadReader) str() string {
	n := int(r.u16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *payloadReader) screenRect() ScreenRect {
	return ScreenRect{
		X:        r.f32(),
		Y:        r.f32(),
		W:        r.f32(),
		H:        r.f32(),
		Rotation: r.f32(),
		Visible:  r.boolean(),
	}
}

func (r *payloadReader) audioState() AudioState {
	return AudioState{
		Playing:    r.boolean(),
		Muted:      r.boolean(),
		PositionMS: r.u32(),
		Volume:     r.f32(),
	}
}

func (r *payloadReader) snapshot() StateSnapshot {
	snap := StateSnapshot{
		ProducerID:    r.str(),
		DroppedFrames: r.u64(),
	}
	snap.RectValid = r.boolean()
	snap.Rect = r.screenRect()
	snap.AnimValid = r.boolean()
	snap.Anim = AnimationUpdate{Track: r.u32(), Frame: r.u32(), Playing: r.boolean(), Speed: r.f32()}
	snap.AudioValid = r.boolean()
	snap.Audio = r.audioState()
	n := int(r.u16())
	if n > 0 && r.err == nil {
		snap.Peers = make([]PeerInfo, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			snap.Peers = append(snap.Peers, PeerInfo{
				ID:       r.str(),
				Name:     r.str(),
				Role:     Role(r.u8()),
				State:    r.str(),
				Primary:  r.boolean(),
				LastSeen: r.i64(),
			})
		}
	}
	return snap
}
