package shm

import "errors"

// Segment byte layout. Offsets are fixed and shared across processes, so any
// change here is a schema version bump.
//
//	header (64 bytes)
//	  0  magic        u32
//	  4  schema       u32
//	  8  slotCapacity u32
//	  12 slotCount    u32
//	  16 currentSlot  u32  (atomic)
//	  24 dropped      u64  (atomic)
//	  32 reserved
//	slot (32-byte header + capacity, stride 64-byte aligned)
//	  0  sequence   u32  (atomic; odd while a write is in flight)
//	  8  length     u32
//	  16 timestamp  i64  (unix nanoseconds)
//	  24 generation u64
//	  32 payload
const (
	segmentMagic uint32 = 0x5053484D // "PSHM"

	// SchemaVersion is the segment layout version. Peers exchange it during
	// the control handshake so mismatched layouts are rejected before any
	// frame is mapped.
	SchemaVersion uint32 = 1

	// SlotCount is fixed: triple buffering keeps one slot being written,
	// one published, and one spare so the writer never laps a reader that
	// keeps up.
	SlotCount = 3

	headerSize = 64

	offMagic        = 0
	offSchema       = 4
	offSlotCapacity = 8
	offSlotCount    = 12
	offCurrentSlot  = 16
	offDropped      = 24

	slotHeaderSize = 32

	offSlotSequence   = 0
	offSlotLength     = 8
	offSlotTimestamp  = 16
	offSlotGeneration = 24

	// DefaultReadRetries bounds the seqlock retry loop before ReadLatest
	// reports a stale frame instead of spinning against a fast writer.
	DefaultReadRetries = 3

	// MaxSlotCapacity caps a single frame slot. Segments are fixed-size
	// mappings; anything larger belongs on a different transport.
	MaxSlotCapacity = 64 << 20
)

// Transport failures surfaced to callers.
var (
	ErrSegmentNotFound = errors.New("shm: segment not found")
	ErrSizeMismatch    = errors.New("shm: segment size or layout mismatch")
	ErrTruncated       = errors.New("shm: payload exceeds slot capacity")
	ErrStaleFrame      = errors.New("shm: no consistent frame available")
)

// slotStride returns the per-slot footprint, aligned so that every slot
// header lands on a cache-line boundary and atomics stay naturally aligned.
func slotStride(capacity uint32) int {
	total := slotHeaderSize + int(capacity)
	const align = 64
	return (total + align - 1) &^ (align - 1)
}

// segmentSize returns the full mapping size for a given slot capacity.
func segmentSize(capacity uint32) int {
	return headerSize + SlotCount*slotStride(capacity)
}

func slotOffset(capacity uint32, index uint32) int {
	return headerSize + int(index)*slotStride(capacity)
}
