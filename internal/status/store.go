package status

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/afdist/afd/internal/afderr"
)

// Store is the shared status substrate of C1: the host arena (FSA), the
// directory arena (FRA), and the single-element global arena (AFD_STATUS).
type Store struct {
	mu sync.Mutex // serializes resize/open, not per-record mutation

	Hosts  *Arena
	Dirs   *Arena
	Global *Arena

	hostIndex map[string]int // alias -> record index, rebuilt on a lookup miss
	dirIndex  map[string]int // alias -> record index, rebuilt on a lookup miss
}

// Open creates (if absent) or attaches the three arenas under workDir/fifo.
func Open(workDir string, initialHosts, initialDirs int) (*Store, error) {
	fifo := filepath.Join(workDir, "fifo")
	if err := os.MkdirAll(fifo, 0o755); err != nil {
		return nil, afderr.New(afderr.Filesystem, fifo, err)
	}
	s := &Store{hostIndex: map[string]int{}, dirIndex: map[string]int{}}

	hostsPath := filepath.Join(fifo, "AFD_STATUS_FSA")
	dirsPath := filepath.Join(fifo, "AFD_STATUS_FRA")
	globalPath := filepath.Join(fifo, "AFD_STATUS")

	var err error
	s.Hosts, err = openOrCreate(hostsPath, magicHost, HostRecordSize(), initialHosts)
	if err != nil {
		return nil, err
	}
	s.Dirs, err = openOrCreate(dirsPath, magicDir, DirRecordSize(), initialDirs)
	if err != nil {
		return nil, err
	}
	s.Global, err = openOrCreate(globalPath, magicGlobal, GlobalRecordSize(), 1)
	if err != nil {
		return nil, err
	}
	s.rebuildHostIndex()
	s.rebuildDirIndex()
	return s, nil
}

func openOrCreate(path string, magic uint32, recordSize, count int) (*Arena, error) {
	a, err := Attach(path, magic, recordSize)
	if err == nil {
		return a, nil
	}
	if afderr.KindOf(err) == afderr.Filesystem {
		return Create(path, magic, recordSize, count)
	}
	return nil, err
}

// Close detaches all three arenas, syncing first.
func (s *Store) Close() error {
	var first error
	for _, a := range []*Arena{s.Hosts, s.Dirs, s.Global} {
		if a == nil {
			continue
		}
		if err := a.Detach(true); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Store) rebuildHostIndex() {
	s.hostIndex = map[string]int{}
	for i := 0; i < s.Hosts.Count(); i++ {
		buf, err := s.Hosts.Record(i)
		if err != nil {
			continue
		}
		h, err := DecodeHost(buf)
		if err != nil || h.Alias == "" {
			continue
		}
		s.hostIndex[h.Alias] = i
	}
}

func (s *Store) rebuildDirIndex() {
	s.dirIndex = map[string]int{}
	for i := 0; i < s.Dirs.Count(); i++ {
		buf, err := s.Dirs.Record(i)
		if err != nil {
			continue
		}
		d, err := DecodeDir(buf)
		if err != nil || d.Alias == "" {
			continue
		}
		s.dirIndex[d.Alias] = i
	}
}

// DirIndex returns the record index for a directory alias, rebuilding the
// cached index once on a miss in case another worker added it concurrently.
func (s *Store) DirIndex(alias string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.dirIndex[alias]; ok {
		return i, true
	}
	s.rebuildDirIndex()
	i, ok := s.dirIndex[alias]
	return i, ok
}

// EnsureDir returns the index of the directory named alias, creating it
// (and growing the arena if necessary) if it isn't present yet.
func (s *Store) EnsureDir(alias string) (int, error) {
	if i, ok := s.DirIndex(alias); ok {
		return i, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.dirIndex[alias]; ok {
		return i, nil
	}
	for i := 0; i < s.Dirs.Count(); i++ {
		buf, err := s.Dirs.Record(i)
		if err != nil {
			return 0, err
		}
		d, err := DecodeDir(buf)
		if err != nil {
			return 0, err
		}
		if d.Alias == "" {
			d.Alias = alias
			d.FSAPos = -1
			if err := EncodeDir(buf, d); err != nil {
				return 0, err
			}
			s.dirIndex[alias] = i
			return i, nil
		}
	}
	oldCount := s.Dirs.Count()
	newCount := oldCount * 2
	if newCount == 0 {
		newCount = 8
	}
	if err := s.Dirs.Resize(newCount); err != nil {
		return 0, err
	}
	idx := oldCount
	rec, err := s.Dirs.Record(idx)
	if err != nil {
		return 0, err
	}
	d, err := DecodeDir(rec)
	if err != nil {
		return 0, err
	}
	d.Alias = alias
	d.FSAPos = -1
	if err := EncodeDir(rec, d); err != nil {
		return 0, err
	}
	s.dirIndex[alias] = idx
	return idx, nil
}

// HostIndex returns the record index for alias, rebuilding the cached
// index once on a miss in case another worker added the host concurrently.
func (s *Store) HostIndex(alias string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.hostIndex[alias]; ok {
		return i, true
	}
	s.rebuildHostIndex()
	i, ok := s.hostIndex[alias]
	return i, ok
}

// EnsureHost returns the index of the host named alias, creating it (and
// growing the arena if necessary) if it isn't present yet — "created when
// a host first appears in configuration" (§3.1 lifecycle).
func (s *Store) EnsureHost(alias string) (int, error) {
	if i, ok := s.HostIndex(alias); ok {
		return i, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// re-check under the lock in case of a racing EnsureHost
	if i, ok := s.hostIndex[alias]; ok {
		return i, nil
	}
	for i := 0; i < s.Hosts.Count(); i++ {
		buf, err := s.Hosts.Record(i)
		if err != nil {
			return 0, err
		}
		h, err := DecodeHost(buf)
		if err != nil {
			return 0, err
		}
		if h.Alias == "" {
			h.Alias = alias
			h.HostToggleStr = "12"
			if err := EncodeHost(buf, h); err != nil {
				return 0, err
			}
			s.hostIndex[alias] = i
			return i, nil
		}
	}
	// no free slot: grow by doubling (to 8 when empty); the first newly-added
	// slot (at the old count) becomes this host's record.
	oldCount := s.Hosts.Count()
	newCount := oldCount * 2
	if newCount == 0 {
		newCount = 8
	}
	if err := s.Hosts.Resize(newCount); err != nil {
		return 0, err
	}
	idx := oldCount
	rec, err := s.Hosts.Record(idx)
	if err != nil {
		return 0, err
	}
	h, err := DecodeHost(rec)
	if err != nil {
		return 0, err
	}
	h.Alias = alias
	h.HostToggleStr = "12"
	if err := EncodeHost(rec, h); err != nil {
		return 0, err
	}
	s.hostIndex[alias] = idx
	return idx, nil
}

// WithHostLock runs fn with an exclusive lock held over host record i,
// decoding before and re-encoding the (possibly mutated) record after.
func (s *Store) WithHostLock(i int, fn func(h *HostRecord) error) error {
	g, err := s.Hosts.LockRecord(i, Exclusive)
	if err != nil {
		return err
	}
	defer g.Unlock()
	buf, err := s.Hosts.Record(i)
	if err != nil {
		return err
	}
	h, err := DecodeHost(buf)
	if err != nil {
		return err
	}
	if err := fn(h); err != nil {
		return err
	}
	return EncodeHost(buf, h)
}

// WithDirLock runs fn with an exclusive lock held over directory record i.
func (s *Store) WithDirLock(i int, fn func(d *DirRecord) error) error {
	g, err := s.Dirs.LockRecord(i, Exclusive)
	if err != nil {
		return err
	}
	defer g.Unlock()
	buf, err := s.Dirs.Record(i)
	if err != nil {
		return err
	}
	d, err := DecodeDir(buf)
	if err != nil {
		return err
	}
	if err := fn(d); err != nil {
		return err
	}
	return EncodeDir(buf, d)
}

// WithGlobalLock runs fn with an exclusive lock held over the global record.
func (s *Store) WithGlobalLock(fn func(g *GlobalRecord) error) error {
	guard, err := s.Global.LockRecord(0, Exclusive)
	if err != nil {
		return err
	}
	defer guard.Unlock()
	buf, err := s.Global.Record(0)
	if err != nil {
		return err
	}
	rec, err := DecodeGlobal(buf)
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}
	return EncodeGlobal(buf, rec)
}

// Reconcile rewrites AFD_STATUS.jobs_in_queue as the sum of every host's
// jobs_queued (queue-conservation invariant I4 / §3.2).
func (s *Store) Reconcile() error {
	var sum int64
	for i := 0; i < s.Hosts.Count(); i++ {
		buf, err := s.Hosts.Record(i)
		if err != nil {
			return err
		}
		h, err := DecodeHost(buf)
		if err != nil {
			return err
		}
		if h.Alias == "" {
			continue
		}
		sum += int64(h.JobsQueued)
	}
	return s.WithGlobalLock(func(g *GlobalRecord) error {
		g.JobsInQueue = sum
		return nil
	})
}
