package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type identifies a message variant on the wire.
type Type uint32

// Registry tags. Tags below criticalTagLimit are handshake/control critical
// and must be understood by both sides; tags at or above it are telemetry
// that older endpoints may pass through unparsed.
const (
	TypeHello           Type = 0x01
	TypeHelloAck        Type = 0x02
	TypeClaimProducer   Type = 0x03
	TypeClaimResult     Type = 0x04
	TypeReleaseProducer Type = 0x05
	TypeTimePing        Type = 0x06
	TypeTimePong        Type = 0x07
	TypeCommand         Type = 0x08
	TypeCommandResult   Type = 0x09
	TypeStateQuery      Type = 0x0A
	TypeStateSnapshot   Type = 0x0B

	TypeHeartbeat       Type = 0x20
	TypeScreenRect      Type = 0x21
	TypeAnimationUpdate Type = 0x22
	TypeAudioState      Type = 0x23

	criticalTagLimit Type = 0x20
)

// Critical reports whether a tag must be understood by the receiver.
func (t Type) Critical() bool { return t < criticalTagLimit }

func (t Type) String() string {
	switch t {
	case TypeHello:
		return "hello"
	case TypeHelloAck:
		return "hello_ack"
	case TypeClaimProducer:
		return "claim_producer"
	case TypeClaimResult:
		return "claim_result"
	case TypeReleaseProducer:
		return "release_producer"
	case TypeTimePing:
		return "time_ping"
	case TypeTimePong:
		return "time_pong"
	case TypeCommand:
		return "command"
	case TypeCommandResult:
		return "command_result"
	case TypeStateQuery:
		return "state_query"
	case TypeStateSnapshot:
		return "state_snapshot"
	case TypeHeartbeat:
		return "heartbeat"
	case TypeScreenRect:
		return "screen_rect"
	case TypeAnimationUpdate:
		return "animation_update"
	case TypeAudioState:
		return "audio_state"
	default:
		return fmt.Sprintf("unknown(%#x)", uint32(t))
	}
}

// Message is one variant of the wire registry.
type Message interface {
	Tag() Type
	appendPayload(b []byte) []byte
}

// Role describes what a connecting peer intends to do.
type Role uint8

const (
	RoleConsumer Role = 1
	RoleProducer Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleConsumer:
		return "consumer"
	case RoleProducer:
		return "producer"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Hello opens the handshake. Schema carries the peer's shared-memory schema
// version so incompatible layouts are rejected before any frame flows.
type Hello struct {
	Role   Role
	Schema uint32
	Name   string
}

// HelloAck answers a Hello. PeerID is daemon-assigned and stable for the
// lifetime of the session.
type HelloAck struct {
	Accepted bool
	PeerID   string
	Reason   string
}

// ClaimProducer requests primary-producer status for the session.
type ClaimProducer struct{}

// ClaimResult reports the outcome of a producer claim.
type ClaimResult struct {
	Granted bool
	Reason  string
}

// ReleaseProducer voluntarily gives up primary-producer status.
type ReleaseProducer struct{}

// TimePing carries the sender's local send timestamp in unix nanoseconds.
type TimePing struct {
	T0 int64
}

// TimePong answers a TimePing with the responder's local receive timestamp.
type TimePong struct {
	T0 int64
	T1 int64
}

// Command is a consumer-issued daemon operation.
type Command struct {
	Op   string
	Args []string
}

// CommandResult reports command execution outcome.
type CommandResult struct {
	OK     bool
	Detail string
}

// StateQuery requests the daemon's aggregated state.
type StateQuery struct{}

// PeerInfo summarizes one connected session inside a StateSnapshot.
type PeerInfo struct {
	ID       string
	Name     string
	Role     Role
	State    string
	Primary  bool
	LastSeen int64
}

// StateSnapshot is the daemon's aggregated view served to consumers.
type StateSnapshot struct {
	ProducerID    string
	DroppedFrames uint64
	Rect          ScreenRect
	RectValid     bool
	Anim          AnimationUpdate
	AnimValid     bool
	Audio         AudioState
	AudioValid    bool
	Peers         []PeerInfo
}

// Heartbeat is the periodic liveness beacon for a streaming session.
type Heartbeat struct {
	Seq    uint64
	SentAt int64
}

// ScreenRect is the host-process screen region being tracked.
type ScreenRect struct {
	X        float32
	Y        float32
	W        float32
	H        float32
	Rotation float32
	Visible  bool
}

// AnimationUpdate reports host-side animation playback state.
type AnimationUpdate struct {
	Track   uint32
	Frame   uint32
	Playing bool
	Speed   float32
}

// AudioState reports host-side audio playback state.
type AudioState struct {
	Playing    bool
	Muted      bool
	PositionMS uint32
	Volume     float32
}

// Unknown preserves an unrecognized non-critical envelope so it can be
// forwarded or logged without being parsed.
type Unknown struct {
	TypeTag Type
	Payload []byte
}

func (Hello) Tag() Type           { return TypeHello }
func (HelloAck) Tag() Type        { return TypeHelloAck }
func (ClaimProducer) Tag() Type   { return TypeClaimProducer }
func (ClaimResult) Tag() Type     { return TypeClaimResult }
func (ReleaseProducer) Tag() Type { return TypeReleaseProducer }
func (TimePing) Tag() Type        { return TypeTimePing }
func (TimePong) Tag() Type        { return TypeTimePong }
func (Command) Tag() Type         { return TypeCommand }
func (CommandResult) Tag() Type   { return TypeCommandResult }
func (StateQuery) Tag() Type      { return TypeStateQuery }
func (StateSnapshot) Tag() Type   { return TypeStateSnapshot }
func (Heartbeat) Tag() Type       { return TypeHeartbeat }
func (ScreenRect) Tag() Type      { return TypeScreenRect }
func (AnimationUpdate) Tag() Type { return TypeAnimationUpdate }
func (AudioState) Tag() Type      { return TypeAudioState }
func (m Unknown) Tag() Type       { return m.TypeTag }

func (m Hello) appendPayload(b []byte) []byte {
	b = append(b, byte(m.Role))
	b = binary.LittleEndian.AppendUint32(b, m.Schema)
	return appendString(b, m.Name)
}

func (m HelloAck) appendPayload(b []byte) []byte {
	b = appendBool(b, m.Accepted)
	b = appendString(b, m.PeerID)
	return appendString(b, m.Reason)
}

func (ClaimProducer) appendPayload(b []byte) []byte { return b }

func (m ClaimResult) appendPayload(b []byte) []byte {
	b = appendBool(b, m.Granted)
	return appendString(b, m.Reason)
}

func (ReleaseProducer) appendPayload(b []byte) []byte { return b }

func (m TimePing) appendPayload(b []byte) []byte {
	return binary.LittleEndian.AppendUint64(b, uint64(m.T0))
}

func (m TimePong) appendPayload(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, uint64(m.T0))
	return binary.LittleEndian.AppendUint64(b, uint64(m.T1))
}

func (m Command) appendPayload(b []byte) []byte {
	b = appendString(b, m.Op)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(m.Args)))
	for _, arg := range m.Args {
		b = appendString(b, arg)
	}
	return b
}

func (m CommandResult) appendPayload(b []byte) []byte {
	b = appendBool(b, m.OK)
	return appendString(b, m.Detail)
}

func (StateQuery) appendPayload(b []byte) []byte { return b }

func (m StateSnapshot) appendPayload(b []byte) []byte {
	b = appendString(b, m.ProducerID)
	b = binary.LittleEndian.AppendUint64(b, m.DroppedFrames)
	b = appendBool(b, m.RectValid)
	b = m.Rect.appendPayload(b)
	b = appendBool(b, m.AnimValid)
	b = m.Anim.appendPayload(b)
	b = appendBool(b, m.AudioValid)
	b = m.Audio.appendPayload(b)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(m.Peers)))
	for _, p := range m.Peers {
		b = appendString(b, p.ID)
		b = appendString(b, p.Name)
		b = append(b, byte(p.Role))
		b = appendString(b, p.State)
		b = appendBool(b, p.Primary)
		b = binary.LittleEndian.AppendUint64(b, uint64(p.LastSeen))
	}
	return b
}

func (m Heartbeat) appendPayload(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, m.Seq)
	return binary.LittleEndian.AppendUint64(b, uint64(m.SentAt))
}

func (m ScreenRect) appendPayload(b []byte) []byte {
	b = appendFloat32(b, m.X)
	b = appendFloat32(b, m.Y)
	b = appendFloat32(b, m.W)
	b = appendFloat32(b, m.H)
	b = appendFloat32(b, m.Rotation)
	return appendBool(b, m.Visible)
}

func (m AnimationUpdate) appendPayload(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, m.Track)
	b = binary.LittleEndian.AppendUint32(b, m.Frame)
	b = appendBool(b, m.Playing)
	return appendFloat32(b, m.Speed)
}

func (m AudioState) appendPayload(b []byte) []byte {
	b = appendBool(b, m.Playing)
	b = appendBool(b, m.Muted)
	b = binary.LittleEndian.AppendUint32(b, m.PositionMS)
	return appendFloat32(b, m.Volume)
}

func (m Unknown) appendPayload(b []byte) []byte {
	return append(b, m.Payload...)
}

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func appendFloat32(b []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
}
