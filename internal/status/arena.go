// Package status implements the shared status store (C1): three
// memory-mapped, versioned, resizable arrays of fixed-size records — hosts
// (FSA), directories (FRA), and one global record (AFD_STATUS) — each
// guarded by byte-range locks over individual records rather than one
// whole-file lock, so concurrent workers never block each other over
// unrelated records.
//
// The design note in spec.md §9 ("shared-memory pointer graphs → arena +
// index") is implemented literally: callers never hold a pointer into the
// mapping across a resize. Every access goes through (*Arena).Record(index),
// which checks the cached version word against the live header and returns
// afderr.ErrStale if the mapping moved under it.
package status

import (
	"encoding/binary"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/afdist/afd/internal/afderr"
)

// Magic values identify which kind of arena a file holds, so attach() can
// refuse to map an FSA file as an FRA file by mistake.
const (
	magicHost   uint32 = 0x46534131 // "FSA1"
	magicDir    uint32 = 0x46524131 // "FRA1"
	magicGlobal uint32 = 0x41535431 // "AST1"

	formatVersion uint32 = 1

	headerSize = 32 // magic,version,featureFlags+pad,count,created,reserved
)

// Feature flags stored in the arena header's feature-flag byte (§4.1).
// FeatureFlags and SetFeatureFlags read and write them; no code in this
// repository acts on them, so setting FeatureDisableHostWarnTime does not
// clear WARN_TIME_REACHED.
const (
	FeatureDisableHostWarnTime uint8 = 1 << iota
	FeatureDisableRetrieve
)

// Arena is a growable, memory-mapped array of fixed-size records.
type Arena struct {
	path       string
	recordSize int
	magic      uint32

	file *os.File
	mem  []byte // the full mapping: header followed by records

	cachedVersion uint32
}

// Create makes a new arena file on disk sized for count records of
// recordSize bytes each, and attaches to it.
func Create(path string, magic uint32, recordSize, count int) (*Arena, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, afderr.New(afderr.Filesystem, path, err)
	}
	size := headerSize + recordSize*count
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, afderr.New(afderr.Filesystem, path, err)
	}
	a := &Arena{path: path, recordSize: recordSize, magic: magic, file: f}
	if err := a.mapFile(size); err != nil {
		f.Close()
		return nil, err
	}
	a.putHeader(header{Magic: magic, Version: formatVersion, Count: uint32(count), Created: time.Now().Unix()})
	a.cachedVersion = formatVersion
	return a, nil
}

// Attach maps an existing arena file. It fails with afderr.ErrIncorrectVersion
// if the magic on disk doesn't match or the version word is below
// formatVersion, rather than silently migrating the layout (§4.1). Resize
// increments the version word, so a resized arena attaches normally.
func Attach(path string, magic uint32, recordSize int) (*Arena, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, afderr.New(afderr.Filesystem, path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, afderr.New(afderr.Filesystem, path, err)
	}
	a := &Arena{path: path, recordSize: recordSize, magic: magic, file: f}
	if err := a.mapFile(int(fi.Size())); err != nil {
		f.Close()
		return nil, err
	}
	h := a.getHeader()
	if h.Magic != magic || h.Version < formatVersion {
		a.unmapOnly()
		f.Close()
		return nil, afderr.ErrIncorrectVersion
	}
	a.cachedVersion = h.Version
	return a, nil
}

func (a *Arena) mapFile(size int) error {
	mem, err := unix.Mmap(int(a.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return afderr.New(afderr.Filesystem, a.path, err)
	}
	a.mem = mem
	return nil
}

func (a *Arena) unmapOnly() {
	if a.mem != nil {
		_ = unix.Munmap(a.mem)
		a.mem = nil
	}
}

// Detach unmaps the arena. If sync is true, fsync happens first (§4.1).
func (a *Arena) Detach(sync bool) error {
	if sync {
		if err := a.file.Sync(); err != nil {
			return afderr.New(afderr.Filesystem, a.path, err)
		}
	}
	a.unmapOnly()
	return a.file.Close()
}

type header struct {
	Magic        uint32
	Version      uint32
	FeatureFlags uint8
	Count        uint32
	Created      int64
}

func (a *Arena) getHeader() header {
	b := a.mem
	return header{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		FeatureFlags: b[8],
		Count:        binary.LittleEndian.Uint32(b[12:16]),
		Created:      int64(binary.LittleEndian.Uint64(b[16:24])),
	}
}

func (a *Arena) putHeader(h header) {
	b := a.mem
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	b[8] = h.FeatureFlags
	binary.LittleEndian.PutUint32(b[12:16], h.Count)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.Created))
}

// Count returns the number of records currently provisioned.
func (a *Arena) Count() int {
	return int(a.getHeader().Count)
}

// FeatureFlags returns the header's current feature-flag byte.
func (a *Arena) FeatureFlags() uint8 {
	return a.getHeader().FeatureFlags
}

// SetFeatureFlags rewrites the header's feature-flag byte.
func (a *Arena) SetFeatureFlags(f uint8) {
	h := a.getHeader()
	h.FeatureFlags = f
	a.putHeader(h)
}

// Stale reports whether this Arena's cached version differs from the
// version recorded on the file (i.e. another process resized it). Callers
// must re-attach rather than continue using a stale mapping (§4.1, §9).
func (a *Arena) Stale() bool {
	return a.getHeader().Version != a.cachedVersion
}

// Record returns a byte slice view over record i. It does not copy.
// Mutations through the returned slice are visible to all attached
// processes once the writer's lock is released.
func (a *Arena) Record(i int) ([]byte, error) {
	if a.Stale() {
		return nil, afderr.ErrStale
	}
	if i < 0 || i >= a.Count() {
		return nil, afderr.Newf(afderr.Programmer, a.path, "record index %d out of range [0,%d)", i, a.Count())
	}
	start := headerSize + i*a.recordSize
	return a.mem[start : start+a.recordSize], nil
}

// Resize grows or shrinks the arena to hold newCount records, bumping the
// version so other attached processes detect staleness and re-map (§4.1,
// §9: "dynamic resizing of shared arrays → explicit re-attach").
func (a *Arena) Resize(newCount int) error {
	h := a.getHeader()
	newSize := headerSize + a.recordSize*newCount
	oldSize := headerSize + a.recordSize*int(h.Count)

	a.unmapOnly()
	if err := a.file.Truncate(int64(newSize)); err != nil {
		return afderr.New(afderr.Filesystem, a.path, err)
	}
	if err := a.mapFile(newSize); err != nil {
		return err
	}
	if newSize > oldSize {
		// zero the newly added records
		for i := oldSize; i < newSize; i++ {
			a.mem[i] = 0
		}
	}
	h.Count = uint32(newCount)
	h.Version++
	a.putHeader(h)
	a.cachedVersion = h.Version
	return nil
}

// Path reports the backing file path, used in log lines and diagnostics.
func (a *Arena) Path() string { return a.path }
