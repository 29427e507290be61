package status

import (
	"encoding/binary"

	"github.com/afdist/afd/internal/afderr"
)

// MaxParallelTransfers bounds the per-slot array in a HostRecord
// (allowed_transfers in §3.1 is deployment-configured but bounded).
const MaxParallelTransfers = 10

// HostStatus bits (§3.1). A uint32 bitmask stored in HostRecord.Status.
const (
	PauseQueue uint32 = 1 << iota
	AutoPauseQueue
	DangerPauseQueue
	StopTransfer
	ErrorOffline
	ErrorOfflineT
	ErrorOfflineStatic
	ErrorAcknowledged
	ErrorAcknowledgedT
	WarnTimeReached
	HostDisabled
	HostInDirConfig
	SuccessAction
	ErrorQueueSet
	PendingErrors
)

// TransferSlot is one of up to allowed_transfers parallel transfer slots.
type TransferSlot struct {
	NoOfFiles     int32
	BytesSend     int64
	ConnectStatus int32
	ProcID        uint32
	JobID         uint32
	FileNameInUse string // truncated/padded to 255 bytes on encode
}

// HostRecord is one FSA element — §3.1.
type HostRecord struct {
	HostID   uint32
	Alias    string // truncated/padded to 64 bytes on encode
	Toggle   uint8
	Protocol uint32

	ActiveTransfers   int32
	TotalFileCounter  int64
	TotalFileSize     int64
	ErrorCounter      int32
	JobsQueued        int32

	MaxErrors      int32
	WarnTime       int64 // seconds; 0 disables
	TransferTimeout int64
	RetryInterval   int64
	HostToggleStr   string // truncated/padded to 8 bytes

	LastConnection int64 // unix seconds, updated by transfer workers
	Status         uint32

	Slots [MaxParallelTransfers]TransferSlot
}

const (
	hostAliasLen    = 64
	hostToggleLen   = 8
	hostFileNameLen = 255
	hostSlotSize    = 4 + 8 + 4 + 4 + 4 + hostFileNameLen // NoOfFiles,BytesSend,ConnectStatus,ProcID,JobID,FileNameInUse
	hostRecordSize  = 4 + hostAliasLen + 1 + 4 + 4 + 8 + 8 + 4 + 4 + 4 + 8 + 8 + 8 + hostToggleLen + 8 + 4 + MaxParallelTransfers*hostSlotSize
)

// HostRecordSize is the fixed on-disk size of one FSA element.
func HostRecordSize() int { return hostRecordSize }

func putFixedString(b []byte, s string, n int) {
	copy(b[:n], s)
	for i := len(s); i < n; i++ {
		b[i] = 0
	}
}

func getFixedString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// EncodeHost serializes h into buf, which must be at least HostRecordSize() bytes.
func EncodeHost(buf []byte, h *HostRecord) error {
	if len(buf) < hostRecordSize {
		return afderr.Newf(afderr.Programmer, h.Alias, "host record buffer too small")
	}
	o := 0
	binary.LittleEndian.PutUint32(buf[o:], h.HostID)
	o += 4
	putFixedString(buf[o:o+hostAliasLen], h.Alias, hostAliasLen)
	o += hostAliasLen
	buf[o] = h.Toggle
	o++
	binary.LittleEndian.PutUint32(buf[o:], h.Protocol)
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], uint32(h.ActiveTransfers))
	o += 4
	binary.LittleEndian.PutUint64(buf[o:], uint64(h.TotalFileCounter))
	o += 8
	binary.LittleEndian.PutUint64(buf[o:], uint64(h.TotalFileSize))
	o += 8
	binary.LittleEndian.PutUint32(buf[o:], uint32(h.ErrorCounter))
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], uint32(h.JobsQueued))
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], uint32(h.MaxErrors))
	o += 4
	binary.LittleEndian.PutUint64(buf[o:], uint64(h.WarnTime))
	o += 8
	binary.LittleEndian.PutUint64(buf[o:], uint64(h.TransferTimeout))
	o += 8
	binary.LittleEndian.PutUint64(buf[o:], uint64(h.RetryInterval))
	o += 8
	putFixedString(buf[o:o+hostToggleLen], h.HostToggleStr, hostToggleLen)
	o += hostToggleLen
	binary.LittleEndian.PutUint64(buf[o:], uint64(h.LastConnection))
	o += 8
	binary.LittleEndian.PutUint32(buf[o:], h.Status)
	o += 4
	for i := range h.Slots {
		s := &h.Slots[i]
		binary.LittleEndian.PutUint32(buf[o:], uint32(s.NoOfFiles))
		o += 4
		binary.LittleEndian.PutUint64(buf[o:], uint64(s.BytesSend))
		o += 8
		binary.LittleEndian.PutUint32(buf[o:], uint32(s.ConnectStatus))
		o += 4
		binary.LittleEndian.PutUint32(buf[o:], s.ProcID)
		o += 4
		binary.LittleEndian.PutUint32(buf[o:], s.JobID)
		o += 4
		putFixedString(buf[o:o+hostFileNameLen], s.FileNameInUse, hostFileNameLen)
		o += hostFileNameLen
	}
	return nil
}

// DecodeHost deserializes a HostRecord from buf.
func DecodeHost(buf []byte) (*HostRecord, error) {
	if len(buf) < hostRecordSize {
		return nil, afderr.Newf(afderr.Programmer, "", "host record buffer too small")
	}
	h := &HostRecord{}
	o := 0
	h.HostID = binary.LittleEndian.Uint32(buf[o:])
	o += 4
	h.Alias = getFixedString(buf[o : o+hostAliasLen])
	o += hostAliasLen
	h.Toggle = buf[o]
	o++
	h.Protocol = binary.LittleEndian.Uint32(buf[o:])
	o += 4
	h.ActiveTransfers = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	h.TotalFileCounter = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	h.TotalFileSize = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	h.ErrorCounter = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	h.JobsQueued = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	h.MaxErrors = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	h.WarnTime = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	h.TransferTimeout = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	h.RetryInterval = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	h.HostToggleStr = getFixedString(buf[o : o+hostToggleLen])
	o += hostToggleLen
	h.LastConnection = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	h.Status = binary.LittleEndian.Uint32(buf[o:])
	o += 4
	for i := range h.Slots {
		s := &h.Slots[i]
		s.NoOfFiles = int32(binary.LittleEndian.Uint32(buf[o:]))
		o += 4
		s.BytesSend = int64(binary.LittleEndian.Uint64(buf[o:]))
		o += 8
		s.ConnectStatus = int32(binary.LittleEndian.Uint32(buf[o:]))
		o += 4
		s.ProcID = binary.LittleEndian.Uint32(buf[o:])
		o += 4
		s.JobID = binary.LittleEndian.Uint32(buf[o:])
		o += 4
		s.FileNameInUse = getFixedString(buf[o : o+hostFileNameLen])
		o += hostFileNameLen
	}
	return h, nil
}
