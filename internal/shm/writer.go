package shm

import (
	"fmt"
	"time"
)

// Writer is the single write owner of a segment. It is not safe for
// concurrent use; the producer calls Write from its own update path.
type Writer struct {
	seg        *segment
	generation uint64
}

// Create allocates the named segment with the given slot capacity and
// returns its write handle. An existing segment with the same name is
// reinitialized, which is the desired behavior after a crashed owner.
func Create(name string, slotCapacity uint32) (*Writer, error) {
	seg, err := createSegment(name, slotCapacity)
	if err != nil {
		return nil, err
	}
	return &Writer{seg: seg}, nil
}

// OpenWriter attaches to an existing segment as its write owner. Write
// ownership is arbitrated by the daemon, not enforced by the mapping;
// a process must hold the primary-producer claim before calling this.
func OpenWriter(name string) (*Writer, error) {
	seg, err := attachSegment(name, true)
	if err != nil {
		return nil, err
	}
	// Resume the generation sequence past anything already published so
	// readers never observe it moving backwards across a writer restart.
	var latest uint64
	for i := uint32(0); i < SlotCount; i++ {
		off := slotOffset(seg.capacity, i)
		if gen := seg.view.plainU64(off + offSlotGeneration); gen > latest {
			latest = gen
		}
	}
	return &Writer{seg: seg, generation: latest}, nil
}

// SlotCapacity returns the fixed per-frame byte capacity.
func (w *Writer) SlotCapacity() uint32 { return w.seg.capacity }

// Name returns the logical segment name.
func (w *Writer) Name() string { return w.seg.name }

// Write publishes one frame. Oversized payloads fail with ErrTruncated,
// bump the dropped-frame counter, and leave every slot untouched. The
// write path never blocks and never waits on readers.
func (w *Writer) Write(payload []byte, timestamp time.Time) error {
	if w.seg == nil || w.seg.view == nil {
		return fmt.Errorf("write on closed segment: %w", ErrSegmentNotFound)
	}
	v := w.seg.view
	if uint32(len(payload)) > w.seg.capacity {
		v.addU64(offDropped, 1)
		return fmt.Errorf("%d bytes into %d-byte slot: %w", len(payload), w.seg.capacity, ErrTruncated)
	}

	current := v.loadU32(offCurrentSlot)
	next := (current + 1) % SlotCount
	base := slotOffset(w.seg.capacity, next)

	// Odd sequence marks the slot as mid-write so readers discard it.
	seq := v.loadU32(base + offSlotSequence)
	v.storeU32(base+offSlotSequence, seq|1)

	w.generation++
	copy(v.bytes(base+slotHeaderSize, len(payload)), payload)
	v.putPlainU32(base+offSlotLength, uint32(len(payload)))
	v.putPlainU64(base+offSlotTimestamp, uint64(timestamp.UnixNano()))
	v.putPlainU64(base+offSlotGeneration, w.generation)

	// Even again: the slot content is complete before it is published.
	v.storeU32(base+offSlotSequence, (seq|1)+1)
	v.storeU32(offCurrentSlot, next)
	return nil
}

// Dropped returns the number of frames rejected as oversized.
func (w *Writer) Dropped() uint64 {
	if w.seg == nil || w.seg.view == nil {
		return 0
	}
	return w.seg.view.loadU64(offDropped)
}

// Generation returns the generation stamp of the most recent Write.
func (w *Writer) Generation() uint64 { return w.generation }

// Close unmaps the segment without removing it; readers keep working.
func (w *Writer) Close() {
	if w.seg != nil {
		w.seg.close()
	}
}

// Destroy unmaps and unlinks the segment.
func (w *Writer) Destroy() error {
	if w.seg == nil {
		return nil
	}
	err := w.seg.unlink()
	w.seg.close()
	return err
}
