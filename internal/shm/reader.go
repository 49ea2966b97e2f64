package shm

import (
	"fmt"
	"time"
)

// Frame is one complete frame copied out of the segment.
type Frame struct {
	Payload    []byte
	Timestamp  time.Time
	Generation uint64
}

// Reader attaches to a segment read-only. A Reader is not safe for
// concurrent use; give each polling goroutine its own.
type Reader struct {
	seg        *segment
	maxRetries int

	// scratch is reused across reads so steady-state polling does not
	// allocate. ReadLatest hands out copies.
	scratch []byte
}

// Open attaches to an existing named segment for reading. Callers retry on
// their own schedule when the segment does not exist yet.
func Open(name string) (*Reader, error) {
	seg, err := attachSegment(name, false)
	if err != nil {
		return nil, err
	}
	return &Reader{
		seg:        seg,
		maxRetries: DefaultReadRetries,
		scratch:    make([]byte, seg.capacity),
	}, nil
}

// SetMaxRetries adjusts the torn-read retry bound.
func (r *Reader) SetMaxRetries(n int) {
	if n > 0 {
		r.maxRetries = n
	}
}

// SlotCapacity returns the fixed per-frame byte capacity.
func (r *Reader) SlotCapacity() uint32 { return r.seg.capacity }

// Dropped returns the writer's oversized-frame counter.
func (r *Reader) Dropped() uint64 {
	if r.seg == nil || r.seg.view == nil {
		return 0
	}
	return r.seg.view.loadU64(offDropped)
}

// ReadLatest copies out the most recently published frame. It never blocks:
// a write in flight or a torn copy triggers a bounded retry, after which
// ErrStaleFrame tells the caller to keep its previous frame. The returned
// payload is a private copy.
func (r *Reader) ReadLatest() (Frame, error) {
	if r.seg == nil || r.seg.view == nil {
		return Frame{}, fmt.Errorf("read on closed segment: %w", ErrSegmentNotFound)
	}
	v := r.seg.view

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		current := v.loadU32(offCurrentSlot)
		if current >= SlotCount {
			return Frame{}, fmt.Errorf("current slot %d: %w", current, ErrSizeMismatch)
		}
		base := slotOffset(r.seg.capacity, current)

		seq := v.loadU32(base + offSlotSequence)
		if seq&1 == 1 {
			// Writer is mid-update on the published slot; it will land
			// almost immediately.
			continue
		}

		length := v.plainU32(base + offSlotLength)
		generation := v.plainU64(base + offSlotGeneration)
		timestamp := v.plainU64(base + offSlotTimestamp)
		if generation == 0 {
			// Nothing has ever been published.
			return Frame{}, ErrStaleFrame
		}
		if length > r.seg.capacity {
			return Frame{}, fmt.Errorf("slot length %d exceeds capacity %d: %w", length, r.seg.capacity, ErrSizeMismatch)
		}
		copy(r.scratch[:length], v.bytes(base+slotHeaderSize, int(length)))

		if v.loadU32(base+offSlotSequence) != seq {
			// Torn read: the writer lapped us while copying.
			continue
		}

		payload := make([]byte, length)
		copy(payload, r.scratch[:length])
		return Frame{
			Payload:    payload,
			Timestamp:  time.Unix(0, int64(timestamp)),
			Generation: generation,
		}, nil
	}
	return Frame{}, ErrStaleFrame
}

// Close unmaps the segment.
func (r *Reader) Close() {
	if r.seg != nil {
		r.seg.close()
	}
}
