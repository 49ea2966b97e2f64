package shm

// view is the only place in the repository that performs pointer arithmetic
// over the mapped segment bytes. Every accessor bounds-checks its offset
// before the unsafe conversion, and all multi-byte fields sit at naturally
// aligned offsets (see layout.go), which the atomic operations require.
//
// Go's atomic operations are sequentially consistent, which is strictly
// stronger than the acquire/release ordering the seqlock needs.

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

type view struct {
	data []byte
}

func newView(data []byte) (*view, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("mapping of %d bytes is smaller than the segment header: %w", len(data), ErrSizeMismatch)
	}
	if uintptr(unsafe.Pointer(&data[0]))%8 != 0 {
		// mmap returns page-aligned memory; anything else is a caller bug.
		return nil, fmt.Errorf("mapping base is not 8-byte aligned: %w", ErrSizeMismatch)
	}
	return &view{data: data}, nil
}

func (v *view) check(off, n int) {
	if off < 0 || n < 0 || off+n > len(v.data) {
		panic(fmt.Sprintf("shm: access [%d:%d) outside mapping of %d bytes", off, off+n, len(v.data)))
	}
}

func (v *view) u32ptr(off int) *atomic.Uint32 {
	v.check(off, 4)
	return (*atomic.Uint32)(unsafe.Pointer(&v.data[off]))
}

func (v *view) u64ptr(off int) *atomic.Uint64 {
	v.check(off, 8)
	return (*atomic.Uint64)(unsafe.Pointer(&v.data[off]))
}

func (v *view) loadU32(off int) uint32          { return v.u32ptr(off).Load() }
func (v *view) storeU32(off int, val uint32)    { v.u32ptr(off).Store(val) }
func (v *view) loadU64(off int) uint64          { return v.u64ptr(off).Load() }
func (v *view) storeU64(off int, val uint64)    { v.u64ptr(off).Store(val) }
func (v *view) addU64(off int, delta uint64) uint64 {
	return v.u64ptr(off).Add(delta)
}

// plainU32 reads a non-atomic field. Callers must hold the seqlock ordering
// guarantee (writer between odd/even transitions, reader before re-checking
// the sequence).
func (v *view) plainU32(off int) uint32 {
	v.check(off, 4)
	return binary.LittleEndian.Uint32(v.data[off : off+4])
}

func (v *view) putPlainU32(off int, val uint32) {
	v.check(off, 4)
	binary.LittleEndian.PutUint32(v.data[off:off+4], val)
}

func (v *view) plainU64(off int) uint64 {
	v.check(off, 8)
	return binary.LittleEndian.Uint64(v.data[off : off+8])
}

func (v *view) putPlainU64(off int, val uint64) {
	v.check(off, 8)
	binary.LittleEndian.PutUint64(v.data[off:off+8], val)
}

func (v *view) bytes(off, n int) []byte {
	v.check(off, n)
	return v.data[off : off+n]
}
