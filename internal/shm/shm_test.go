package shm_test

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"periscope/internal/shm"
)

func testSegmentName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("periscope_test_%s_%d", t.Name(), time.Now().UnixNano())
}

func mustCreate(t *testing.T, name string, capacity uint32) *shm.Writer {
	t.Helper()
	writer, err := shm.Create(name, capacity)
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	t.Cleanup(func() {
		_ = writer.Destroy()
	})
	return writer
}

func TestWriteReadLatest(t *testing.T) {
	name := testSegmentName(t)
	writer := mustCreate(t, name, 256)

	reader, err := shm.Open(name)
	if err != nil {
		t.Fatalf("shm.Open: %v", err)
	}
	defer reader.Close()

	if _, err := reader.ReadLatest(); !errors.Is(err, shm.ErrStaleFrame) {
		t.Fatalf("empty segment: expected stale frame, got %v", err)
	}

	stamp := time.Unix(0, 1_700_000_000_000_000_000)
	payload := []byte("frame one")
	if err := writer.Write(payload, stamp); err != nil {
		t.Fatalf("Write: %v", err)
	}

	frame, err := reader.ReadLatest()
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if string(frame.Payload) != "frame one" {
		t.Fatalf("payload = %q", frame.Payload)
	}
	if !frame.Timestamp.Equal(stamp) {
		t.Fatalf("timestamp = %v, want %v", frame.Timestamp, stamp)
	}
	if frame.Generation != 1 {
		t.Fatalf("generation = %d, want 1", frame.Generation)
	}

	// Most recent complete frame wins.
	if err := writer.Write([]byte("frame two"), stamp.Add(time.Millisecond)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	frame, err = reader.ReadLatest()
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if string(frame.Payload) != "frame two" || frame.Generation != 2 {
		t.Fatalf("latest frame = %q gen %d", frame.Payload, frame.Generation)
	}
}

func TestOpenMissingSegment(t *testing.T) {
	_, err := shm.Open(testSegmentName(t))
	if !errors.Is(err, shm.ErrSegmentNotFound) {
		t.Fatalf("expected ErrSegmentNotFound, got %v", err)
	}
}

func TestOversizedWriteLeavesPreviousFrame(t *testing.T) {
	name := testSegmentName(t)
	writer := mustCreate(t, name, 16)

	reader, err := shm.Open(name)
	if err != nil {
		t.Fatalf("shm.Open: %v", err)
	}
	defer reader.Close()

	if err := writer.Write([]byte("short"), time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	oversized := make([]byte, 17)
	if err := writer.Write(oversized, time.Now()); !errors.Is(err, shm.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if got := writer.Dropped(); got != 1 {
		t.Fatalf("dropped counter = %d, want 1", got)
	}
	if got := reader.Dropped(); got != 1 {
		t.Fatalf("reader-visible dropped counter = %d, want 1", got)
	}

	frame, err := reader.ReadLatest()
	if err != nil {
		t.Fatalf("ReadLatest after truncated write: %v", err)
	}
	if string(frame.Payload) != "short" {
		t.Fatalf("previous frame clobbered: %q", frame.Payload)
	}
}

func TestWriterRestartResumesGeneration(t *testing.T) {
	name := testSegmentName(t)
	writer := mustCreate(t, name, 64)

	for i := 0; i < 5; i++ {
		if err := writer.Write([]byte("x"), time.Now()); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	writer.Close()

	reopened, err := shm.OpenWriter(name)
	if err != nil {
		t.Fatalf("shm.OpenWriter: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Write([]byte("y"), time.Now()); err != nil {
		t.Fatalf("Write after reopen: %v", err)
	}
	if got := reopened.Generation(); got != 6 {
		t.Fatalf("generation after restart = %d, want 6", got)
	}
}

// TestConcurrentReadersNeverSeeTornFrame hammers one writer against several
// readers. Every payload embeds its generation stamp and a fill byte derived
// from it, so a buffer mixing two distinct writes is detectable.
func TestConcurrentReadersNeverSeeTornFrame(t *testing.T) {
	const (
		capacity = 4096
		readers  = 4
		duration = 200 * time.Millisecond
	)
	name := testSegmentName(t)
	writer := mustCreate(t, name, capacity)

	var stop atomic.Bool
	var wg sync.WaitGroup
	errCh := make(chan error, readers+1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		payload := make([]byte, capacity)
		var gen uint64
		for !stop.Load() {
			gen++
			binary.LittleEndian.PutUint64(payload, gen)
			fill := byte(gen)
			for i := 8; i < len(payload); i++ {
				payload[i] = fill
			}
			if err := writer.Write(payload, time.Now()); err != nil {
				errCh <- fmt.Errorf("write gen %d: %w", gen, err)
				return
			}
		}
	}()

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			reader, err := shm.Open(name)
			if err != nil {
				errCh <- fmt.Errorf("reader %d open: %w", id, err)
				return
			}
			defer reader.Close()
			var lastGen uint64
			for !stop.Load() {
				frame, err := reader.ReadLatest()
				if errors.Is(err, shm.ErrStaleFrame) {
					continue
				}
				if err != nil {
					errCh <- fmt.Errorf("reader %d: %w", id, err)
					return
				}
				if len(frame.Payload) != capacity {
					errCh <- fmt.Errorf("reader %d: payload length %d", id, len(frame.Payload))
					return
				}
				embedded := binary.LittleEndian.Uint64(frame.Payload)
				if embedded != frame.Generation {
					errCh <- fmt.Errorf("reader %d: slot generation %d, payload stamp %d", id, frame.Generation, embedded)
					return
				}
				fill := byte(embedded)
				for i := 8; i < len(frame.Payload); i++ {
					if frame.Payload[i] != fill {
						errCh <- fmt.Errorf("reader %d: torn frame, byte %d is %#02x for gen %d", id, i, frame.Payload[i], embedded)
						return
					}
				}
				if embedded < lastGen {
					errCh <- fmt.Errorf("reader %d: generation went backwards %d -> %d", id, lastGen, embedded)
					return
				}
				lastGen = embedded
			}
		}(r)
	}

	time.Sleep(duration)
	stop.Store(true)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

func TestReadLatestRetryBound(t *testing.T) {
	name := testSegmentName(t)
	writer := mustCreate(t, name, 32)
	if err := writer.Write([]byte("data"), time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reader, err := shm.Open(name)
	if err != nil {
		t.Fatalf("shm.Open: %v", err)
	}
	defer reader.Close()
	reader.SetMaxRetries(1)

	if _, err := reader.ReadLatest(); err != nil {
		t.Fatalf("ReadLatest with reduced retry bound: %v", err)
	}
}
