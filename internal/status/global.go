package status

import (
	"encoding/binary"

	"github.com/afdist/afd/internal/afderr"
)

// ProcState is a subprocess's slot state in AFD_STATUS (§3.1).
type ProcState int32

// The five process states.
const (
	ProcOff ProcState = iota
	ProcOn
	ProcShutdown
	ProcStopped
	ProcNeither
)

// MaxProcSlots bounds the per-subprocess state array.
const MaxProcSlots = 16

// HistoryRingLen is the length of each rotating log-count history ring.
const HistoryRingLen = 48

// GlobalRecord is the single AFD_STATUS element — §3.1.
type GlobalRecord struct {
	ProcStates [MaxProcSlots]ProcState

	SysLogHistory     [HistoryRingLen]int32
	ReceiveLogHistory [HistoryRingLen]int32
	TransLogHistory   [HistoryRingLen]int32

	ForkCounter  int64
	BurstCounter int32
	JobsInQueue  int64
	MaxQueueLength int64

	StartTime int64
	WorkDir   string // padded to 256
	Hostname  string // padded to 64
	UserID    int32

	Heartbeat        uint64
	ShutdownRequested bool
}

const (
	globalWorkDirLen = 256
	globalHostnameLen = 64
	globalRecordSize = MaxProcSlots*4 +
		HistoryRingLen*4*3 +
		8 + 4 + 8 + 8 +
		8 + globalWorkDirLen + globalHostnameLen + 4 +
		8 + 1
)

// GlobalRecordSize is the fixed on-disk size of the AFD_STATUS element.
func GlobalRecordSize() int { return globalRecordSize }

// EncodeGlobal serializes g into buf.
func EncodeGlobal(buf []byte, g *GlobalRecord) error {
	if len(buf) < globalRecordSize {
		return afderr.Newf(afderr.Programmer, g.Hostname, "global record buffer too small")
	}
	o := 0
	for i := range g.ProcStates {
		binary.LittleEndian.PutUint32(buf[o:], uint32(g.ProcStates[i]))
		o += 4
	}
	for _, ring := range [][HistoryRingLen]int32{g.SysLogHistory, g.ReceiveLogHistory, g.TransLogHistory} {
		for _, v := range ring {
			binary.LittleEndian.PutUint32(buf[o:], uint32(v))
			o += 4
		}
	}
	binary.LittleEndian.PutUint64(buf[o:], uint64(g.ForkCounter))
	o += 8
	binary.LittleEndian.PutUint32(buf[o:], uint32(g.BurstCounter))
	o += 4
	binary.LittleEndian.PutUint64(buf[o:], uint64(g.JobsInQueue))
	o += 8
	binary.LittleEndian.PutUint64(buf[o:], uint64(g.MaxQueueLength))
	o += 8
	binary.LittleEndian.PutUint64(buf[o:], uint64(g.StartTime))
	o += 8
	putFixedString(buf[o:o+globalWorkDirLen], g.WorkDir, globalWorkDirLen)
	o += globalWorkDirLen
	putFixedString(buf[o:o+globalHostnameLen], g.Hostname, globalHostnameLen)
	o += globalHostnameLen
	binary.LittleEndian.PutUint32(buf[o:], uint32(g.UserID))
	o += 4
	binary.LittleEndian.PutUint64(buf[o:], g.Heartbeat)
	o += 8
	putBool(buf[o:o+1], g.ShutdownRequested)
	o++
	return nil
}

// DecodeGlobal deserializes a GlobalRecord from buf.
func DecodeGlobal(buf []byte) (*GlobalRecord, error) {
	if len(buf) < globalRecordSize {
		return nil, afderr.Newf(afderr.Programmer, "", "global record buffer too small")
	}
	g := &GlobalRecord{}
	o := 0
	for i := range g.ProcStates {
		g.ProcStates[i] = ProcState(binary.LittleEndian.Uint32(buf[o:]))
		o += 4
	}
	rings := []*[HistoryRingLen]int32{&g.SysLogHistory, &g.ReceiveLogHistory, &g.TransLogHistory}
	for _, ring := range rings {
		for i := range ring {
			ring[i] = int32(binary.LittleEndian.Uint32(buf[o:]))
			o += 4
		}
	}
	g.ForkCounter = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	g.BurstCounter = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	g.JobsInQueue = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	g.MaxQueueLength = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	g.StartTime = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	g.WorkDir = getFixedString(buf[o : o+globalWorkDirLen])
	o += globalWorkDirLen
	g.Hostname = getFixedString(buf[o : o+globalHostnameLen])
	o += globalHostnameLen
	g.UserID = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	g.Heartbeat = binary.LittleEndian.Uint64(buf[o:])
	o += 8
	g.ShutdownRequested = buf[o] != 0
	o++
	return g, nil
}
