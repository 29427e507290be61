// Package convert implements the ten deterministic, streamable byte-level
// format conversions of C5: the WMO bulletin framings, the line-ending
// transforms, and the ISO-8859-1 to ASCII transliteration. Every conversion
// is a pure function from source bytes to an output writer; callers that
// need the atomic temp-file-then-rename behaviour use ToFile.
package convert

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

var (
	soh    = byte(0x01)
	etx    = byte(0x03)
	cr     = byte('\r')
	lf     = byte('\n')
	sohHdr = []byte{soh, cr, cr, lf}
	etxTlr = []byte{cr, cr, lf, etx}
)

// Func is the signature every conversion shares: read all of src, write the
// transformed bytes to w, and report the new length.
type Func func(src []byte, w io.Writer) (int64, error)

// ByName resolves a convert option's identifier to its Func, as used by the
// handling engine's "convert" option.
func ByName(name string) (Func, bool) {
	f, ok := registry[name]
	return f, ok
}

var registry = map[string]Func{
	"sohetx":      Sohetx,
	"wmo":         Wmo,
	"sohetxwmo":   Sohetxwmo,
	"sohetx2wmo0": Sohetx2wmo0,
	"sohetx2wmo1": Sohetx2wmo1,
	"mrz2wmo":     Mrz2wmo,
	"unix2dos":    Unix2dos,
	"dos2unix":    Dos2unix,
	"lf2crcrlf":   Lf2crcrlf,
	"crcrlf2lf":   Crcrlf2lf,
	"iso8859":     Iso8859ToASCII,
}

// hasSohFraming reports whether b starts with SOH CR CR LF and ends with
// CR CR LF ETX.
func hasSohFraming(b []byte) bool {
	return bytes.HasPrefix(b, sohHdr) && bytes.HasSuffix(b, etxTlr)
}

// Sohetx wraps src in SOH CR CR LF / CR CR LF ETX framing unless it is
// already framed on both ends.
func Sohetx(src []byte, w io.Writer) (int64, error) {
	if hasSohFraming(src) {
		n, err := w.Write(src)
		return int64(n), err
	}
	bw := bufio.NewWriter(w)
	var total int64
	for _, p := range [][]byte{sohHdr, src, etxTlr} {
		n, err := bw.Write(p)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}

// wmoHeader renders a 10-byte WMO length/type header: 8 ASCII digits of
// length, then the two ASCII characters "01".
func wmoHeader(length int) []byte {
	return []byte(fmt.Sprintf("%08d01", length))
}

// stripFraming removes an outer SOH CR CR LF ... CR CR LF ETX wrapper if
// present, returning the inner body.
func stripFraming(b []byte) []byte {
	if hasSohFraming(b) {
		return b[len(sohHdr) : len(b)-len(etxTlr)]
	}
	return b
}

// hasWMOHeader reports whether the first 10 bytes look like a WMO header:
// 8 ASCII digits followed by "01".
func hasWMOHeader(b []byte) bool {
	if len(b) < 10 {
		return false
	}
	for i := 0; i < 8; i++ {
		if b[i] < '0' || b[i] > '9' {
			return false
		}
	}
	return b[8] == '0' && b[9] == '1'
}

// Wmo strips any outer SOH/ETX framing, then prepends a 10-byte WMO header
// describing the resulting inner length. If src already carries a WMO
// header, Wmo is a no-op: applying it again would otherwise wrap the
// previous header and framing as a new, larger body.
func Wmo(src []byte, w io.Writer) (int64, error) {
	if hasWMOHeader(src) {
		n, err := w.Write(src)
		return int64(n), err
	}
	body := stripFraming(src)
	hdr := wmoHeader(len(body))
	n1, err := w.Write(hdr)
	if err != nil {
		return int64(n1), err
	}
	n2, err := w.Write(body)
	return int64(n1 + n2), err
}

// Sohetxwmo adds both the WMO 10-byte header and the SOH/ETX framing,
// detecting and skipping either transform already present so repeated
// application is idempotent.
func Sohetxwmo(src []byte, w io.Writer) (int64, error) {
	body := src
	if hasWMOHeader(body) {
		body = body[10:]
	}
	framed := hasSohFraming(body)
	inner := body
	if framed {
		inner = body[len(sohHdr) : len(body)-len(etxTlr)]
	}
	hdr := wmoHeader(len(sohHdr) + len(inner) + len(etxTlr))
	var n int64
	k, err := w.Write(hdr)
	n += int64(k)
	if err != nil {
		return n, err
	}
	k, err = w.Write(sohHdr)
	n += int64(k)
	if err != nil {
		return n, err
	}
	k, err = w.Write(inner)
	n += int64(k)
	if err != nil {
		return n, err
	}
	k, err = w.Write(etxTlr)
	n += int64(k)
	return n, err
}

// Sohetx2wmo0 splits src into consecutive SOH...ETX bulletins and rewrites
// each as header + SOH CR CR LF + body + CR CR LF ETX.
func Sohetx2wmo0(src []byte, w io.Writer) (int64, error) {
	return sohetx2wmo(src, w, true)
}

// Sohetx2wmo1 splits src into consecutive SOH...ETX bulletins and rewrites
// each as header + body, dropping the SOH/ETX framing from the output.
func Sohetx2wmo1(src []byte, w io.Writer) (int64, error) {
	return sohetx2wmo(src, w, false)
}

func sohetx2wmo(src []byte, w io.Writer, keepFraming bool) (int64, error) {
	var total int64
	rest := src
	for {
		start := bytes.IndexByte(rest, soh)
		if start < 0 {
			break
		}
		etxOff := bytes.IndexByte(rest[start+1:], etx)
		nextSOH := bytes.IndexByte(rest[start+1:], soh)
		var body []byte
		var advance int
		if etxOff < 0 || (nextSOH >= 0 && nextSOH < etxOff) {
			// No closing ETX before the next SOH: this bulletin is
			// unterminated. Frame it to the next SOH (or EOF) instead of
			// dropping it, matching the original's tolerance for a
			// missing trailer.
			if nextSOH < 0 {
				body = rest[start+1:]
				advance = len(rest)
			} else {
				body = rest[start+1 : start+1+nextSOH]
				advance = start + 1 + nextSOH
			}
		} else {
			end := start + 1 + etxOff
			body = rest[start+1 : end]
			advance = end + 1
		}
		body = bytes.TrimPrefix(body, []byte{cr, cr, lf})
		body = bytes.TrimSuffix(body, []byte{cr, cr, lf})

		var out []byte
		if keepFraming {
			out = make([]byte, 0, len(sohHdr)+len(body)+len(etxTlr))
			out = append(out, sohHdr...)
			out = append(out, body...)
			out = append(out, etxTlr...)
		} else {
			out = body
		}
		hdr := wmoHeader(len(out))
		if n, err := w.Write(hdr); err != nil {
			return total + int64(n), err
		} else {
			total += int64(n)
		}
		if n, err := w.Write(out); err != nil {
			return total + int64(n), err
		} else {
			total += int64(n)
		}
		rest = rest[advance:]
	}
	return total, nil
}

// Unix2dos replaces every LF not already preceded by CR with CR LF.
func Unix2dos(src []byte, w io.Writer) (int64, error) {
	var total int64
	for i := 0; i < len(src); i++ {
		b := src[i]
		if b == lf && (i == 0 || src[i-1] != cr) {
			n, err := w.Write([]byte{cr, lf})
			total += int64(n)
			if err != nil {
				return total, err
			}
			continue
		}
		n, err := w.Write([]byte{b})
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Dos2unix collapses every CR LF pair to LF; a lone CR passes through.
func Dos2unix(src []byte, w io.Writer) (int64, error) {
	var total int64
	for i := 0; i < len(src); i++ {
		if src[i] == cr && i+1 < len(src) && src[i+1] == lf {
			n, err := w.Write([]byte{lf})
			total += int64(n)
			if err != nil {
				return total, err
			}
			i++
			continue
		}
		n, err := w.Write([]byte{src[i]})
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Lf2crcrlf turns every LF not already part of a CR CR LF sequence into
// CR CR LF.
func Lf2crcrlf(src []byte, w io.Writer) (int64, error) {
	var total int64
	for i := 0; i < len(src); i++ {
		b := src[i]
		if b == lf && !(i >= 2 && src[i-1] == cr && src[i-2] == cr) {
			n, err := w.Write([]byte{cr, cr, lf})
			total += int64(n)
			if err != nil {
				return total, err
			}
			continue
		}
		n, err := w.Write([]byte{b})
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Crcrlf2lf collapses every CR CR LF sequence to a single LF; other CR runs
// pass through unchanged.
func Crcrlf2lf(src []byte, w io.Writer) (int64, error) {
	var total int64
	for i := 0; i < len(src); i++ {
		if src[i] == cr && i+2 < len(src) && src[i+1] == cr && src[i+2] == lf {
			n, err := w.Write([]byte{lf})
			total += int64(n)
			if err != nil {
				return total, err
			}
			i += 2
			continue
		}
		n, err := w.Write([]byte{src[i]})
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
