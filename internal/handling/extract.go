package handling

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/afdist/afd/internal/afderr"
	"github.com/afdist/afd/internal/logx"
)

const (
	soh = byte(0x01)
	etx = byte(0x03)
)

// bulletinSplitter returns the byte ranges of each bulletin body found in
// data, one per extract container format (§4.3's extract option).
type bulletinSplitter func(data []byte) [][2]int

// applyExtract splits every file in the batch into one file per bulletin,
// named {original}-NNNN, using the container format named by args[0]. An
// empty extract id is read as MRZ, the legacy default.
func applyExtract(batch *Batch, args []string) error {
	format := "MRZ"
	if len(args) > 0 {
		format = args[0]
	}
	splitter, ok := splitterFor(format)
	if !ok {
		return afderr.Newf(afderr.Configuration, format, "unknown extract format")
	}

	kept := make([]string, 0, len(batch.FilesToSend))
	for _, name := range batch.FilesToSend {
		path := filepath.Join(batch.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logx.Errorf(path, "extract: read failed: %v", err)
			continue
		}
		ranges := splitter(data)
		if len(ranges) == 0 {
			kept = append(kept, name)
			continue
		}
		for i, r := range ranges {
			outName := fmt.Sprintf("%s-%04d", name, i)
			outPath := filepath.Join(batch.Dir, outName)
			if err := os.WriteFile(outPath, data[r[0]:r[1]], 0o644); err != nil {
				logx.Errorf(outPath, "extract: write failed: %v", err)
				continue
			}
			kept = append(kept, outName)
		}
		_ = os.Remove(path)
	}
	batch.FilesToSend = kept
	return batch.recount()
}

func splitterFor(format string) (bulletinSplitter, bool) {
	switch format {
	case "WMO":
		return splitWMO, true
	case "VAX":
		return splitLengthPrefixed(2, binary.LittleEndian), true
	case "LBF":
		return splitLengthPrefixed(4, binary.LittleEndian), true
	case "HBF":
		return splitLengthPrefixed(4, binary.BigEndian), true
	case "MSS":
		return splitMSS, true
	case "ZCZC":
		return splitZCZC, true
	case "ASCII":
		return splitSOHETX, true
	case "GRIB":
		return splitMagic([]byte("GRIB")), true
	case "MRZ":
		// MRZ carries GRIB/BUFR/BLOK segments indiscriminately; any of
		// the three magics starts a new bulletin.
		return splitAnyMagic([][]byte{[]byte("GRIB"), []byte("BUFR"), []byte("BLOK")}), true
	default:
		return nil, false
	}
}

// splitWMO walks consecutive 10-byte "NNNNNNNN01" headers, each giving the
// length of the bulletin that follows.
func splitWMO(data []byte) [][2]int {
	var out [][2]int
	pos := 0
	for pos+10 <= len(data) {
		if !hasWMOHeaderAt(data, pos) {
			break
		}
		n := 0
		for _, c := range data[pos : pos+8] {
			n = n*10 + int(c-'0')
		}
		start := pos + 10
		end := start + n
		if end > len(data) {
			break
		}
		out = append(out, [2]int{start, end})
		pos = end
	}
	return out
}

func hasWMOHeaderAt(data []byte, pos int) bool {
	for i := 0; i < 8; i++ {
		if data[pos+i] < '0' || data[pos+i] > '9' {
			return false
		}
	}
	return data[pos+8] == '0' && data[pos+9] == '1'
}

// splitLengthPrefixed builds a splitter for containers with a fixed-width
// binary length prefix in the given byte order (VAX=2 bytes LBF, LBF/HBF=4
// bytes).
func splitLengthPrefixed(width int, order binary.ByteOrder) bulletinSplitter {
	return func(data []byte) [][2]int {
		var out [][2]int
		pos := 0
		for pos+width <= len(data) {
			var n int
			switch width {
			case 2:
				n = int(order.Uint16(data[pos:]))
			case 4:
				n = int(order.Uint32(data[pos:]))
			}
			start := pos + width
			end := start + n
			if n <= 0 || end > len(data) {
				break
			}
			out = append(out, [2]int{start, end})
			pos = end
		}
		return out
	}
}

// splitMSS handles the MSS variant's four-byte length field followed by a
// two-byte type marker that is not part of the body.
func splitMSS(data []byte) [][2]int {
	var out [][2]int
	pos := 0
	for pos+6 <= len(data) {
		n := int(binary.BigEndian.Uint32(data[pos:]))
		start := pos + 6
		end := start + n
		if n <= 0 || end > len(data) {
			break
		}
		out = append(out, [2]int{start, end})
		pos = end
	}
	return out
}

// splitZCZC splits at "ZCZC" start markers and "NNNN" end markers, the
// classic GTS bulletin delimiter pair.
func splitZCZC(data []byte) [][2]int {
	var out [][2]int
	pos := 0
	for {
		start := indexAt(data, []byte("ZCZC"), pos)
		if start < 0 {
			break
		}
		end := indexAt(data, []byte("NNNN"), start+4)
		if end < 0 {
			break
		}
		out = append(out, [2]int{start + 4, end})
		pos = end + 4
	}
	return out
}

func splitSOHETX(data []byte) [][2]int {
	var out [][2]int
	pos := 0
	for {
		start := indexByte(data, soh, pos)
		if start < 0 {
			break
		}
		end := indexByte(data, etx, start+1)
		if end < 0 {
			break
		}
		out = append(out, [2]int{start + 1, end})
		pos = end + 1
	}
	return out
}

func splitMagic(magic []byte) bulletinSplitter {
	return splitAnyMagic([][]byte{magic})
}

func splitAnyMagic(magics [][]byte) bulletinSplitter {
	return func(data []byte) [][2]int {
		var starts []int
		for _, m := range magics {
			pos := 0
			for {
				idx := indexAt(data, m, pos)
				if idx < 0 {
					break
				}
				starts = append(starts, idx)
				pos = idx + 1
			}
		}
		if len(starts) == 0 {
			return nil
		}
		sortInts(starts)
		out := make([][2]int, 0, len(starts))
		for i, s := range starts {
			end := len(data)
			if i+1 < len(starts) {
				end = starts[i+1]
			}
			out = append(out, [2]int{s, end})
		}
		return out
	}
}

func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}

func indexByte(data []byte, b byte, from int) int {
	if from >= len(data) {
		return -1
	}
	for i := from; i < len(data); i++ {
		if data[i] == b {
			return i
		}
	}
	return -1
}

func indexAt(haystack, needle []byte, from int) int {
	if from >= len(haystack) {
		return -1
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
