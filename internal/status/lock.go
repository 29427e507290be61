package status

import (
	"golang.org/x/sys/unix"

	"github.com/afdist/afd/internal/afderr"
)

// LockMode is shared (read) or exclusive (write).
type LockMode int

// The two supported lock modes.
const (
	Shared LockMode = iota
	Exclusive
)

// Guard represents a held byte-range lock over one record's status-word
// region. Release it by calling Unlock once the mutation is complete.
type Guard struct {
	fd    int
	start int64
	len   int64
}

// LockRecord takes a byte-range lock over record i's header-status region
// (the whole record, in this implementation — the spec only requires that
// the lock cover the status-word region, and covering the whole record is
// the simplest correct superset). Lock ordering across arenas must follow
// §5: host-lock before directory-lock before global-lock before list-lock;
// this package does not enforce that globally, callers are responsible for
// acquiring locks in that order.
func (a *Arena) LockRecord(i int, mode LockMode) (*Guard, error) {
	if _, err := a.Record(i); err != nil { // validates range + staleness
		return nil, err
	}
	start := int64(headerSize + i*a.recordSize)
	length := int64(a.recordSize)

	lockType := int16(unix.F_WRLCK)
	if mode == Shared {
		lockType = unix.F_RDLCK
	}
	flock := unix.Flock_t{
		Type:   lockType,
		Whence: 0, // SEEK_SET
		Start:  start,
		Len:    length,
	}
	fd := int(a.file.Fd())
	if err := unix.FcntlFlock(uintptr(fd), unix.F_SETLKW, &flock); err != nil {
		return nil, afderr.New(afderr.Filesystem, a.path, err)
	}
	return &Guard{fd: fd, start: start, len: length}, nil
}

// Unlock releases the byte-range lock.
func (g *Guard) Unlock() error {
	flock := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: 0,
		Start:  g.start,
		Len:    g.len,
	}
	return unix.FcntlFlock(uintptr(g.fd), unix.F_SETLK, &flock)
}
