package convert

import "io"

// mrzMagics are the four-byte magics that start a GRIB, BUFR or BLOK
// container inside an MRZ exchange file.
var mrzMagics = [][]byte{
	[]byte("GRIB"),
	[]byte("BUFR"),
	[]byte("BLOK"),
}

// Mrz2wmo scans src for GRIB/BUFR/BLOK segments (the binary containers the
// DWD/EZMW exchange format concatenates back to back) and re-emits each as
// an independently framed WMO bulletin: header, then the segment bytes
// verbatim. A segment with no length it can trust runs to the next magic
// or end of input.
func Mrz2wmo(src []byte, w io.Writer) (int64, error) {
	var total int64
	i := 0
	for i < len(src) {
		magicAt, magicLen := -1, 0
		for _, m := range mrzMagics {
			if idx := indexAt(src, m, i); idx >= 0 && (magicAt < 0 || idx < magicAt) {
				magicAt, magicLen = idx, len(m)
			}
		}
		if magicAt < 0 {
			break
		}
		next := len(src)
		for _, m := range mrzMagics {
			if idx := indexAt(src, m, magicAt+magicLen); idx >= 0 && idx < next {
				next = idx
			}
		}
		segment := src[magicAt:next]
		hdr := wmoHeader(len(segment))
		if n, err := w.Write(hdr); err != nil {
			return total + int64(n), err
		} else {
			total += int64(n)
		}
		if n, err := w.Write(segment); err != nil {
			return total + int64(n), err
		} else {
			total += int64(n)
		}
		i = next
	}
	return total, nil
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
