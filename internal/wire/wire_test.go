package wire_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"periscope/internal/wire"
)

func registryMessages() []wire.Message {
	return []wire.Message{
		wire.Hello{Role: wire.RoleProducer, Schema: 1, Name: "injector"},
		wire.HelloAck{Accepted: true, PeerID: "2c0f7f74-0f6e-4a3c-9f5d-6f1f2f3a4b5c"},
		wire.HelloAck{Accepted: false, Reason: "schema mismatch"},
		wire.ClaimProducer{},
		wire.ClaimResult{Granted: false, Reason: "not primary"},
		wire.ReleaseProducer{},
		wire.TimePing{T0: 1234567890},
		wire.TimePong{T0: 1234567890, T1: 1234568000},
		wire.Command{Op: "status"},
		wire.Command{Op: "stop", Args: []string{"--force", "now"}},
		wire.CommandResult{OK: true, Detail: "stopped"},
		wire.StateQuery{},
		wire.StateSnapshot{
			ProducerID:    "p-1",
			DroppedFrames: 42,
			RectValid:     true,
			Rect:          wire.ScreenRect{X: 1, Y: 2, W: 3, H: 4, Rotation: 0.5, Visible: true},
			Peers: []wire.PeerInfo{
				{ID: "p-1", Name: "injector", Role: wire.RoleProducer, State: "streaming", Primary: true, LastSeen: 99},
				{ID: "c-1", Name: "overlay", Role: wire.RoleConsumer, State: "registered"},
			},
		},
		wire.Heartbeat{Seq: 7, SentAt: 1700000000},
		wire.ScreenRect{X: 10.0, Y: 20.0, W: 100.0, H: 50.0, Rotation: 0.0, Visible: true},
		wire.AnimationUpdate{Track: 3, Frame: 120, Playing: true, Speed: 1.5},
		wire.AudioState{Playing: true, PositionMS: 4200, Volume: 0.8},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, msg := range registryMessages() {
		encoded := wire.Encode(msg)
		decoded, err := wire.Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%T): %v", msg, err)
		}
		if !reflect.DeepEqual(decoded, msg) {
			t.Fatalf("round trip %T: got %#v, want %#v", msg, decoded, msg)
		}
	}
}

func TestDecodeRejectsFlippedPayloadByte(t *testing.T) {
	for _, msg := range registryMessages() {
		encoded := wire.Encode(msg)
		if len(encoded) == wire.HeaderSize {
			continue // empty payload, nothing to flip
		}
		for i := wire.HeaderSize; i < len(encoded); i++ {
			corrupted := append([]byte(nil), encoded...)
			corrupted[i] ^= 0x01
			if _, err := wire.Decode(corrupted); !errors.Is(err, wire.ErrChecksumMismatch) {
				t.Fatalf("%T byte %d: expected checksum mismatch, got %v", msg, i, err)
			}
		}
	}
}

func TestScreenRectScenario(t *testing.T) {
	rect := wire.ScreenRect{X: 10.0, Y: 20.0, W: 100.0, H: 50.0, Rotation: 0.0, Visible: true}
	decoded, err := wire.Decode(wire.Encode(rect))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := decoded.(wire.ScreenRect)
	if !ok {
		t.Fatalf("decoded %T, want ScreenRect", decoded)
	}
	if got != rect {
		t.Fatalf("got %+v, want %+v", got, rect)
	}
}

func TestDecodeValidationOrder(t *testing.T) {
	valid := wire.Encode(wire.Heartbeat{Seq: 1, SentAt: 2})

	t.Run("magic", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint32(bad[0:4], 0xDEADBEEF)
		if _, err := wire.Decode(bad); !errors.Is(err, wire.ErrMagicMismatch) {
			t.Fatalf("expected magic mismatch, got %v", err)
		}
	})

	t.Run("version", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint32(bad[4:8], wire.Version+0x0001_0000)
		if _, err := wire.Decode(bad); !errors.Is(err, wire.ErrVersionMismatch) {
			t.Fatalf("expected version mismatch, got %v", err)
		}
	})

	t.Run("minor version compatible", func(t *testing.T) {
		ok := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint32(ok[4:8], wire.Version+1)
		if _, err := wire.Decode(ok); err != nil {
			t.Fatalf("minor bump should decode, got %v", err)
		}
	})

	t.Run("length", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint32(bad[12:16], 99)
		if _, err := wire.Decode(bad); !errors.Is(err, wire.ErrLengthMismatch) {
			t.Fatalf("expected length mismatch, got %v", err)
		}
	})

	t.Run("truncated header", func(t *testing.T) {
		if _, err := wire.Decode(valid[:10]); !errors.Is(err, wire.ErrLengthMismatch) {
			t.Fatalf("expected length mismatch, got %v", err)
		}
	})
}

func TestUnknownTagPassthrough(t *testing.T) {
	payload := []byte{0xCA, 0xFE, 0x01}
	encoded := wire.Encode(wire.Unknown{TypeTag: 0x7F31, Payload: payload})
	decoded, err := wire.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	unknown, ok := decoded.(wire.Unknown)
	if !ok {
		t.Fatalf("decoded %T, want Unknown", decoded)
	}
	if unknown.TypeTag != 0x7F31 || !bytes.Equal(unknown.Payload, payload) {
		t.Fatalf("passthrough mangled: %+v", unknown)
	}

	// Re-encoding an Unknown must produce the original envelope so a relay
	// can forward messages it does not understand.
	if !bytes.Equal(wire.Encode(unknown), encoded) {
		t.Fatal("re-encoded Unknown differs from original envelope")
	}
}

func TestUnknownCriticalTagRejected(t *testing.T) {
	encoded := wire.Encode(wire.Unknown{TypeTag: 0x1F, Payload: []byte{1}})
	if _, err := wire.Decode(encoded); !errors.Is(err, wire.ErrUnknownMessageType) {
		t.Fatalf("expected unknown message type, got %v", err)
	}
}

func TestReadWriteMessageStream(t *testing.T) {
	var buf bytes.Buffer
	first := wire.Heartbeat{Seq: 1, SentAt: 100}
	second := wire.Command{Op: "status"}
	if err := wire.WriteMessage(&buf, first); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := wire.WriteMessage(&buf, second); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	got, err := wire.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage first: %v", err)
	}
	if !reflect.DeepEqual(got, first) {
		t.Fatalf("first message: got %#v", got)
	}
	got, err = wire.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage second: %v", err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Fatalf("second message: got %#v", got)
	}
}

func TestTruncatedPayloadRejected(t *testing.T) {
	encoded := wire.Encode(wire.ScreenRect{X: 1, Visible: true})
	// Re-frame a shortened payload with a valid checksum; the variant
	// decoder must still reject it.
	short := encoded[wire.HeaderSize : len(encoded)-4]
	reframed := wire.Encode(wire.Unknown{TypeTag: wire.TypeScreenRect, Payload: short})
	if _, err := wire.Decode(reframed); !errors.Is(err, wire.ErrLengthMismatch) {
		t.Fatalf("expected length mismatch, got %v", err)
	}
}
