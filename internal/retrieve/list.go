package retrieve

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/afdist/afd/internal/afderr"
	"github.com/afdist/afd/internal/status"
)

const (
	magicRetrieveList uint32 = 0x52544c31 // "RTL1"
	nameFieldLen             = 255
	listRecordSize           = nameFieldLen + 8 /*mtime*/ + 8 /*size*/ + 1 /*retrieved*/ + 4 /*assigned*/ + 1 /*inList*/
)

// ListEntry mirrors one persisted retrieve-list record (§4.4): a remote
// file name paired with the planner's last-known view of it.
type ListEntry struct {
	Name      string
	ModTime   time.Time
	Size      int64
	Retrieved bool
	Assigned  int32 // worker id holding this entry, 0 if unassigned
	InList    bool  // touched during the current scan; drives compaction
}

// List is the persisted, lockable retrieve list for one directory alias,
// backed by the same memory-mapped/byte-range-locked arena as the shared
// status records (§4.4's "Concurrency: per-entry byte-range lock").
type List struct {
	arena *status.Arena
}

// OpenList opens (creating if absent) the retrieve list for dirAlias under
// {work_dir}/files/incoming/ls_data/.
func OpenList(workDir, dirAlias string, initialCapacity int) (*List, error) {
	dir := filepath.Join(workDir, "files", "incoming", "ls_data")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, afderr.New(afderr.Filesystem, dir, err)
	}
	path := filepath.Join(dir, dirAlias)
	a, err := status.Attach(path, magicRetrieveList, listRecordSize)
	if err != nil {
		if afderr.KindOf(err) != afderr.Filesystem {
			return nil, err
		}
		a, err = status.Create(path, magicRetrieveList, listRecordSize, initialCapacity)
		if err != nil {
			return nil, err
		}
	}
	return &List{arena: a}, nil
}

// Close detaches the underlying arena.
func (l *List) Close() error { return l.arena.Detach(true) }

// Count returns the number of record slots (including empty ones).
func (l *List) Count() int { return l.arena.Count() }

func encodeEntry(buf []byte, e *ListEntry) {
	var nameBuf [nameFieldLen]byte
	copy(nameBuf[:], e.Name)
	o := 0
	copy(buf[o:o+nameFieldLen], nameBuf[:])
	o += nameFieldLen
	binary.LittleEndian.PutUint64(buf[o:], uint64(e.ModTime.Unix()))
	o += 8
	binary.LittleEndian.PutUint64(buf[o:], uint64(e.Size))
	o += 8
	if e.Retrieved {
		buf[o] = 1
	} else {
		buf[o] = 0
	}
	o++
	binary.LittleEndian.PutUint32(buf[o:], uint32(e.Assigned))
	o += 4
	if e.InList {
		buf[o] = 1
	} else {
		buf[o] = 0
	}
}

func decodeEntry(buf []byte) *ListEntry {
	e := &ListEntry{}
	o := 0
	n := 0
	for n < nameFieldLen && buf[o+n] != 0 {
		n++
	}
	e.Name = string(buf[o : o+n])
	o += nameFieldLen
	e.ModTime = time.Unix(int64(binary.LittleEndian.Uint64(buf[o:])), 0)
	o += 8
	e.Size = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	e.Retrieved = buf[o] != 0
	o++
	e.Assigned = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	e.InList = buf[o] != 0
	return e
}

// WithEntryLock runs fn with an exclusive lock held on record i, decoding
// before and re-encoding (the possibly mutated) record after — the unit
// §4.4 calls "lock_region(list_fd, index)".
func (l *List) WithEntryLock(i int, fn func(e *ListEntry) error) error {
	g, err := l.arena.LockRecord(i, status.Exclusive)
	if err != nil {
		return err
	}
	defer g.Unlock()
	buf, err := l.arena.Record(i)
	if err != nil {
		return err
	}
	e := decodeEntry(buf)
	if err := fn(e); err != nil {
		return err
	}
	encodeEntry(buf, e)
	return nil
}

// Find returns the index of the entry named name, or -1 if absent. It does
// not lock; callers needing a consistent read should follow up with
// WithEntryLock.
func (l *List) Find(name string) (int, error) {
	for i := 0; i < l.arena.Count(); i++ {
		buf, err := l.arena.Record(i)
		if err != nil {
			return -1, err
		}
		e := decodeEntry(buf)
		if e.Name == name {
			return i, nil
		}
	}
	return -1, nil
}

// Append stores a new entry in the first empty slot, growing the arena by
// doubling if none is free.
func (l *List) Append(e ListEntry) (int, error) {
	for i := 0; i < l.arena.Count(); i++ {
		buf, err := l.arena.Record(i)
		if err != nil {
			return -1, err
		}
		if decodeEntry(buf).Name == "" {
			encodeEntry(buf, &e)
			return i, nil
		}
	}
	oldCount := l.arena.Count()
	newCount := oldCount * 2
	if newCount == 0 {
		newCount = 16
	}
	if err := l.arena.Resize(newCount); err != nil {
		return -1, err
	}
	buf, err := l.arena.Record(oldCount)
	if err != nil {
		return -1, err
	}
	encodeEntry(buf, &e)
	return oldCount, nil
}

// Entries returns a snapshot of every non-empty record, for iteration by
// the planner's scan passes.
func (l *List) Entries() ([]ListEntry, error) {
	out := make([]ListEntry, 0, l.arena.Count())
	for i := 0; i < l.arena.Count(); i++ {
		buf, err := l.arena.Record(i)
		if err != nil {
			return nil, err
		}
		e := decodeEntry(buf)
		if e.Name == "" {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// Compact clears every record whose InList flag is false, freeing the slot
// for reuse (§4.4 step 5: "compact the list by deleting entries with
// in_list=false").
func (l *List) Compact() error {
	for i := 0; i < l.arena.Count(); i++ {
		err := l.WithEntryLock(i, func(e *ListEntry) error {
			if e.Name != "" && !e.InList {
				*e = ListEntry{}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
