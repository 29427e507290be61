// Package procmon implements the process table and heartbeat of C2: the
// single file at {work_dir}/fifo/AFD_ACTIVE that makes one daemon per
// working directory exclusive, tracks which managed subprocess owns which
// PID, and carries the monotone heartbeat and shutdown-request byte that
// the supervisor's main loop watches.
package procmon

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/afdist/afd/internal/afderr"
)

// MaxSlots bounds the number of managed subprocess slots. The supervisor's
// own PID is kept in a separate field ahead of the slots, so every slot,
// slot 0 included, belongs to a managed worker (§4.2).
const MaxSlots = 16

const (
	activeMagic   uint32 = 0x41435431 // "ACT1"
	recordSize           = 4 /*magic*/ + 4 /*supervisor pid*/ + MaxSlots*(4+64) /*pid+name*/ + 8 /*heartbeat*/ + 1 /*shutdown*/
	slotNameBytes        = 64
)

// ErrAlreadyRunning is returned by Claim when another open file holds the
// AFD_ACTIVE lock.
var ErrAlreadyRunning = afderr.Newf(afderr.Configuration, "", "AFD is already running in this working directory")

// ActiveFile is the claimed, memory-resident view of AFD_ACTIVE. All
// mutating methods immediately persist to disk so a crash leaves the file
// consistent for the next claim attempt.
type ActiveFile struct {
	mu   sync.Mutex
	path string
	file *os.File

	supervisorPID int32
	slotPID       [MaxSlots]int32
	slotName      [MaxSlots]string
	heartbeat     uint64
	shutdown      bool
}

// Claim is the supervisor's entry point (§4.2). It takes a non-blocking
// exclusive flock on AFD_ACTIVE: if another open file holds that lock,
// Claim fails with ErrAlreadyRunning; otherwise it truncates the file and
// takes ownership. The prior file's heartbeat is not read and
// heartbeatTimeout is not consulted, so a live owner whose heartbeat has
// stalled still blocks the claim.
func Claim(workDir string, heartbeatTimeout time.Duration) (*ActiveFile, error) {
	path := filepath.Join(workDir, "fifo", "AFD_ACTIVE")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, afderr.New(afderr.Filesystem, path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, afderr.New(afderr.Filesystem, path, err)
	}

	// Exclusive, non-blocking whole-file lock enforces "at most one
	// daemon per work dir" even against a process whose heartbeat has
	// stalled but who hasn't exited (I1).
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrAlreadyRunning
		}
		return nil, afderr.New(afderr.Filesystem, path, err)
	}

	// The advisory exclusive flock above is what proves no other live
	// supervisor holds this file: the OS releases it the instant a prior
	// owner dies, heartbeat or no heartbeat. heartbeatTimeout is accepted
	// but unused; there is no heartbeat-based fallback.
	_ = heartbeatTimeout

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, afderr.New(afderr.Filesystem, path, err)
	}

	a := &ActiveFile{path: path, file: f, supervisorPID: int32(os.Getpid())}
	if err := a.persistLocked(); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func decode(buf []byte) ActiveFile {
	var a ActiveFile
	o := 4 // skip magic
	a.supervisorPID = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	for i := 0; i < MaxSlots; i++ {
		a.slotPID[i] = int32(binary.LittleEndian.Uint32(buf[o:]))
		o += 4
		n := 0
		for n < slotNameBytes && buf[o+n] != 0 {
			n++
		}
		a.slotName[i] = string(buf[o : o+n])
		o += slotNameBytes
	}
	a.heartbeat = binary.LittleEndian.Uint64(buf[o:])
	o += 8
	a.shutdown = buf[o] != 0
	return a
}

func (a *ActiveFile) persistLocked() error {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint32(buf[0:], activeMagic)
	o := 4
	binary.LittleEndian.PutUint32(buf[o:], uint32(a.supervisorPID))
	o += 4
	for i := 0; i < MaxSlots; i++ {
		binary.LittleEndian.PutUint32(buf[o:], uint32(a.slotPID[i]))
		o += 4
		copy(buf[o:o+slotNameBytes], a.slotName[i])
		o += slotNameBytes
	}
	binary.LittleEndian.PutUint64(buf[o:], a.heartbeat)
	o += 8
	if a.shutdown {
		buf[o] = 1
	}
	if _, err := a.file.WriteAt(buf, 0); err != nil {
		return afderr.New(afderr.Filesystem, a.path, err)
	}
	return nil
}

// Peek reads the heartbeat and PID table of a running (or crashed) daemon's
// AFD_ACTIVE file without claiming ownership of it — used by monitoring
// tools that only need to observe liveness, never to become the supervisor.
func Peek(workDir string) (supervisorPID int32, heartbeat uint64, livePIDs []int32, err error) {
	path := filepath.Join(workDir, "fifo", "AFD_ACTIVE")
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, afderr.New(afderr.Filesystem, path, err)
	}
	defer f.Close()
	buf := make([]byte, recordSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, 0, nil, afderr.New(afderr.Filesystem, path, err)
	}
	a := decode(buf)
	pids := make([]int32, 0, MaxSlots+1)
	if a.supervisorPID != 0 {
		pids = append(pids, a.supervisorPID)
	}
	for _, pid := range a.slotPID {
		if pid != 0 {
			pids = append(pids, pid)
		}
	}
	return a.supervisorPID, a.heartbeat, pids, nil
}

// RecordPID writes a slot's PID and subprocess name (§4.2).
func (a *ActiveFile) RecordPID(slot int, pid int32, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slot < 0 || slot >= MaxSlots {
		return afderr.Newf(afderr.Programmer, name, "slot %d out of range", slot)
	}
	a.slotPID[slot] = pid
	a.slotName[slot] = name
	return a.persistLocked()
}

// Tick increments the heartbeat. Strictly monotone while healthy (I2).
func (a *ActiveFile) Tick() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.heartbeat++
	return a.persistLocked()
}

// Heartbeat returns the current heartbeat value.
func (a *ActiveFile) Heartbeat() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.heartbeat
}

// RequestShutdown sets the shutdown byte. Any supervisor observing it
// nonzero begins graceful shutdown (§4.2).
func (a *ActiveFile) RequestShutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdown = true
	return a.persistLocked()
}

// ShutdownRequested reports the current shutdown-byte state.
func (a *ActiveFile) ShutdownRequested() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shutdown
}

// ListLivePIDs returns every nonzero PID in the table (supervisor first),
// used by the exit handler to signal the whole process family (§4.2).
func (a *ActiveFile) ListLivePIDs() []int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	pids := make([]int32, 0, MaxSlots+1)
	if a.supervisorPID != 0 {
		pids = append(pids, a.supervisorPID)
	}
	for _, pid := range a.slotPID {
		if pid != 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}

// Release unlocks and closes the active marker and unlinks it, the final
// step of a graceful shutdown (§4.6).
func (a *ActiveFile) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = unix.Flock(int(a.file.Fd()), unix.LOCK_UN)
	if err := a.file.Close(); err != nil {
		return afderr.New(afderr.Filesystem, a.path, err)
	}
	if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
		return afderr.New(afderr.Filesystem, a.path, err)
	}
	return nil
}
