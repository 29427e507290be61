package status

import (
	"encoding/binary"

	"github.com/afdist/afd/internal/afderr"
)

// GtLtSign is the relation tag used by ignore_size and ignore_file_time
// (§3.1): a threshold of zero always matches regardless of the sign.
type GtLtSign uint8

// The three relation tags.
const (
	Equal GtLtSign = iota
	LessThan
	GreaterThan
)

// Matches reports whether value compares against threshold per the sign,
// honoring the "threshold zero always matches" rule of §4.4.
func (s GtLtSign) Matches(value, threshold int64) bool {
	if threshold == 0 {
		return true
	}
	switch s {
	case LessThan:
		return value < threshold
	case GreaterThan:
		return value > threshold
	default:
		return value == threshold
	}
}

// DirFlag bits (§3.1).
const (
	DontGetDirList uint32 = 1 << iota
	AcceptDotFiles
	MaxCopied
)

// StupidMode controls whether a directory's retrieve list is one-shot or
// persisted across scans (§3.1, §4.4).
type StupidMode uint8

// The two stupid_mode values.
const (
	Persistent StupidMode = iota
	GetOnceOnly
)

// DirRecord is one FRA element — §3.1.
type DirRecord struct {
	Alias string // dir_alias, padded to 64 bytes
	URL   string // padded to 256 bytes
	FSAPos int32 // owner host index, -1 if local

	FilesInDir   int64
	BytesInDir   int64
	FilesQueued  int64
	BytesInQueue int64
	FilesReceived int64
	BytesReceived int64
	LastRetrieval int64

	NoOfProcess int32
	MaxProcess  int32

	IgnoreSize      int64
	IgnoreSizeSign  GtLtSign
	IgnoreFileTime     int64
	IgnoreFileTimeSign GtLtSign

	MaxCopiedFiles    int32
	MaxCopiedFileSize int64
	StupidModeValue   StupidMode
	Remove            bool

	DirFlag uint32
}

const (
	dirAliasLen = 64
	dirURLLen   = 256
	dirRecordSize = dirAliasLen + dirURLLen + 4 +
		8 + 8 + 8 + 8 + 8 + 8 + 8 +
		4 + 4 +
		8 + 1 + 8 + 1 +
		4 + 8 + 1 + 1 +
		4
)

// DirRecordSize is the fixed on-disk size of one FRA element.
func DirRecordSize() int { return dirRecordSize }

func putBool(buf []byte, v bool) {
	if v {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
}

// EncodeDir serializes d into buf.
func EncodeDir(buf []byte, d *DirRecord) error {
	if len(buf) < dirRecordSize {
		return afderr.Newf(afderr.Programmer, d.Alias, "dir record buffer too small")
	}
	o := 0
	putFixedString(buf[o:o+dirAliasLen], d.Alias, dirAliasLen)
	o += dirAliasLen
	putFixedString(buf[o:o+dirURLLen], d.URL, dirURLLen)
	o += dirURLLen
	binary.LittleEndian.PutUint32(buf[o:], uint32(d.FSAPos))
	o += 4
	for _, v := range []int64{d.FilesInDir, d.BytesInDir, d.FilesQueued, d.BytesInQueue, d.FilesReceived, d.BytesReceived, d.LastRetrieval} {
		binary.LittleEndian.PutUint64(buf[o:], uint64(v))
		o += 8
	}
	binary.LittleEndian.PutUint32(buf[o:], uint32(d.NoOfProcess))
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], uint32(d.MaxProcess))
	o += 4
	binary.LittleEndian.PutUint64(buf[o:], uint64(d.IgnoreSize))
	o += 8
	buf[o] = byte(d.IgnoreSizeSign)
	o++
	binary.LittleEndian.PutUint64(buf[o:], uint64(d.IgnoreFileTime))
	o += 8
	buf[o] = byte(d.IgnoreFileTimeSign)
	o++
	binary.LittleEndian.PutUint32(buf[o:], uint32(d.MaxCopiedFiles))
	o += 4
	binary.LittleEndian.PutUint64(buf[o:], uint64(d.MaxCopiedFileSize))
	o += 8
	buf[o] = byte(d.StupidModeValue)
	o++
	putBool(buf[o:o+1], d.Remove)
	o++
	binary.LittleEndian.PutUint32(buf[o:], d.DirFlag)
	o += 4
	return nil
}

// DecodeDir deserializes a DirRecord from buf.
func DecodeDir(buf []byte) (*DirRecord, error) {
	if len(buf) < dirRecordSize {
		return nil, afderr.Newf(afderr.Programmer, "", "dir record buffer too small")
	}
	d := &DirRecord{}
	o := 0
	d.Alias = getFixedString(buf[o : o+dirAliasLen])
	o += dirAliasLen
	d.URL = getFixedString(buf[o : o+dirURLLen])
	o += dirURLLen
	d.FSAPos = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	vals := [7]*int64{&d.FilesInDir, &d.BytesInDir, &d.FilesQueued, &d.BytesInQueue, &d.FilesReceived, &d.BytesReceived, &d.LastRetrieval}
	for _, p := range vals {
		*p = int64(binary.LittleEndian.Uint64(buf[o:]))
		o += 8
	}
	d.NoOfProcess = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	d.MaxProcess = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	d.IgnoreSize = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	d.IgnoreSizeSign = GtLtSign(buf[o])
	o++
	d.IgnoreFileTime = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	d.IgnoreFileTimeSign = GtLtSign(buf[o])
	o++
	d.MaxCopiedFiles = int32(binary.LittleEndian.Uint32(buf[o:]))
	o += 4
	d.MaxCopiedFileSize = int64(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	d.StupidModeValue = StupidMode(buf[o])
	o++
	d.Remove = buf[o] != 0
	o++
	d.DirFlag = binary.LittleEndian.Uint32(buf[o:])
	o += 4
	return d, nil
}
