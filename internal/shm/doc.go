// Package shm implements the lock-free shared-memory frame transport.
//
// A segment is a named, memory-mapped region holding a fixed header and three
// frame slots. Exactly one process writes; any number of processes read. Each
// slot carries a seqlock sequence counter: the writer makes it odd before
// touching the slot and even after, and readers that observe an odd counter
// or a counter change mid-copy discard the torn read and retry. The writer
// rotates through the slots and publishes the freshest one through an atomic
// current-slot index, so under normal timing it never overwrites the slot a
// reader is copying. Older frames are overwritten undelivered; only the
// latest complete frame matters.
//
// Writers never wait on readers and readers never block writers. A reader
// that cannot obtain a consistent frame within its retry bound gets
// ErrStaleFrame and keeps whatever frame it already had.
//
// All unsafe pointer arithmetic over the mapped bytes is confined to view.go;
// the rest of the package and all callers work through the bounds-checked
// view API.
package shm
