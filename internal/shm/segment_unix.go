//go:build unix

package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// segment is one mapped shared-memory region. The logical name maps to a
// file under /dev/shm where available (true tmpfs, never touches disk) and
// the system temp directory otherwise.
type segment struct {
	name     string
	path     string
	fd       int
	data     []byte
	view     *view
	capacity uint32
	writable bool
}

// SegmentPath resolves a logical segment name to its backing file path.
func SegmentPath(name string) string {
	base := sanitizeName(name)
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", base)
	}
	return filepath.Join(os.TempDir(), base)
}

func sanitizeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
	if cleaned == "" {
		cleaned = "periscope_frames"
	}
	return cleaned
}

// createSegment allocates (or resets) the backing file, maps it read-write,
// and initializes the header. A stale segment left by a crashed owner is
// reinitialized in place.
func createSegment(name string, slotCapacity uint32) (*segment, error) {
	if slotCapacity == 0 || slotCapacity > MaxSlotCapacity {
		return nil, fmt.Errorf("slot capacity %d out of range (1..%d): %w", slotCapacity, MaxSlotCapacity, ErrSizeMismatch)
	}
	path := SegmentPath(name)
	size := segmentSize(slotCapacity)

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("size segment %s to %d bytes: %w", path, size, err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("map segment %s: %w", path, err)
	}
	v, err := newView(data)
	if err != nil {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		return nil, err
	}

	for i := range data {
		data[i] = 0
	}
	v.putPlainU32(offMagic, segmentMagic)
	v.putPlainU32(offSchema, SchemaVersion)
	v.putPlainU32(offSlotCapacity, slotCapacity)
	v.putPlainU32(offSlotCount, SlotCount)
	v.storeU32(offCurrentSlot, 0)
	v.storeU64(offDropped, 0)

	return &segment{name: name, path: path, fd: fd, data: data, view: v, capacity: slotCapacity, writable: true}, nil
}

// attachSegment maps an existing segment and validates its header against
// this build's layout.
func attachSegment(name string, writable bool) (*segment, error) {
	path := SegmentPath(name)

	flags := unix.O_RDONLY | unix.O_CLOEXEC
	prot := unix.PROT_READ
	if writable {
		flags = unix.O_RDWR | unix.O_CLOEXEC
		prot = unix.PROT_READ | unix.PROT_WRITE
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("segment %q (%s): %w", name, path, ErrSegmentNotFound)
		}
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("stat segment %s: %w", path, err)
	}
	if stat.Size < headerSize {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("segment %s holds %d bytes: %w", path, stat.Size, ErrSizeMismatch)
	}

	data, err := unix.Mmap(fd, 0, int(stat.Size), prot, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("map segment %s: %w", path, err)
	}
	v, err := newView(data)
	if err != nil {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		return nil, err
	}

	seg := &segment{name: name, path: path, fd: fd, data: data, view: v, writable: writable}
	if err := seg.validateHeader(int(stat.Size)); err != nil {
		seg.close()
		return nil, err
	}
	return seg, nil
}

func (s *segment) validateHeader(mappedSize int) error {
	if magic := s.view.plainU32(offMagic); magic != segmentMagic {
		return fmt.Errorf("segment %s magic %#08x: %w", s.path, magic, ErrSizeMismatch)
	}
	if schema := s.view.plainU32(offSchema); schema != SchemaVersion {
		return fmt.Errorf("segment %s schema %d, expected %d: %w", s.path, schema, SchemaVersion, ErrSizeMismatch)
	}
	if count := s.view.plainU32(offSlotCount); count != SlotCount {
		return fmt.Errorf("segment %s slot count %d, expected %d: %w", s.path, count, SlotCount, ErrSizeMismatch)
	}
	capacity := s.view.plainU32(offSlotCapacity)
	if capacity == 0 || capacity > MaxSlotCapacity {
		return fmt.Errorf("segment %s slot capacity %d: %w", s.path, capacity, ErrSizeMismatch)
	}
	if want := segmentSize(capacity); mappedSize < want {
		return fmt.Errorf("segment %s holds %d bytes, layout needs %d: %w", s.path, mappedSize, want, ErrSizeMismatch)
	}
	s.capacity = capacity
	return nil
}

func (s *segment) close() {
	if s.data != nil {
		_ = unix.Munmap(s.data)
		s.data = nil
		s.view = nil
	}
	if s.fd >= 0 {
		_ = unix.Close(s.fd)
		s.fd = -1
	}
}

// unlink removes the backing file. Existing mappings stay valid until every
// process unmaps; new opens fail with ErrSegmentNotFound.
func (s *segment) unlink() error {
	if err := unix.Unlink(s.path); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("unlink segment %s: %w", s.path, err)
	}
	return nil
}
