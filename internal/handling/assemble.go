package handling

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/afdist/afd/internal/afderr"
	"github.com/afdist/afd/internal/logx"
)

// applyAssemble concatenates every file in the batch into one, framing
// each according to the named container format, and names the result by
// the assemble name rule (§4.3.1).
func applyAssemble(batch *Batch, args []string, deps Deps) error {
	if len(args) == 0 {
		return afderr.Newf(afderr.Configuration, "assemble", "missing container format")
	}
	format := args[0]
	if _, ok := assembleFramers[format]; !ok {
		return afderr.Newf(afderr.Configuration, format, "unknown assemble format")
	}
	framer := assembleFramers[format]

	if len(batch.FilesToSend) == 0 {
		return nil
	}

	var seq int
	if deps.SequenceNext != nil {
		seq = deps.SequenceNext(format)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	outName := expandAssembleNameRule(nameRuleFor(format), seq, now())
	outPath := filepath.Join(batch.Dir, outName)

	out, err := os.Create(outPath)
	if err != nil {
		return afderr.New(afderr.Filesystem, outPath, err)
	}
	defer out.Close()

	for _, name := range batch.FilesToSend {
		path := filepath.Join(batch.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logx.Errorf(path, "assemble: read failed: %v", err)
			continue
		}
		if _, err := out.Write(framer(data)); err != nil {
			return afderr.New(afderr.Filesystem, outPath, err)
		}
		_ = os.Remove(path)
	}

	batch.FilesToSend = []string{outName}
	return batch.recount()
}

// assembleFramers wraps a single bulletin body in the framing its target
// container format expects before concatenation.
var assembleFramers = map[string]func([]byte) []byte{
	"WMO": func(b []byte) []byte {
		hdr := []byte(fmt.Sprintf("%08d01", len(b)))
		return append(hdr, b...)
	},
	"VAX": func(b []byte) []byte {
		n := len(b)
		return append([]byte{byte(n), byte(n >> 8)}, b...)
	},
	"LBF": func(b []byte) []byte {
		n := len(b)
		return append([]byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}, b...)
	},
	"HBF": func(b []byte) []byte {
		n := len(b)
		return append([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}, b...)
	},
	"DWD": func(b []byte) []byte {
		return append(append([]byte{soh, '\r', '\r', '\n'}, b...), '\r', '\r', '\n', etx)
	},
	"ASCII": func(b []byte) []byte { return append(append([]byte{}, b...), '\n') },
	"MSS": func(b []byte) []byte {
		n := len(b)
		return append([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n), 0, 0}, b...)
	},
}

// nameRuleFor returns a default output-name template for a format when the
// caller hasn't configured one explicitly. Deployments normally configure
// this per host; this is the fallback.
func nameRuleFor(format string) string {
	return strings.ToLower(format) + "_bulletin_%n_%tY%tm%td%tH%tM"
}

// expandAssembleNameRule expands the §4.3.1 template language: literal
// passthrough, %n for a zero-padded 4-digit sequence counter, and %t<fmt>
// for GMT time fields. Unknown escapes produce empty output.
func expandAssembleNameRule(rule string, seq int, now time.Time) string {
	utc := now.UTC()
	var b strings.Builder
	for i := 0; i < len(rule); i++ {
		if rule[i] != '%' || i+1 >= len(rule) {
			b.WriteByte(rule[i])
			continue
		}
		i++
		switch rule[i] {
		case 'n':
			fmt.Fprintf(&b, "%04d", seq)
		case 't':
			if i+1 >= len(rule) {
				break
			}
			i++
			b.WriteString(expandTimeField(rule[i], utc))
		default:
			// Unknown escape: empty output and a warning (§4.3.1).
			logx.Warnf("assemble", "unknown name rule escape %%%c", rule[i])
		}
	}
	return b.String()
}

func expandTimeField(field byte, t time.Time) string {
	switch field {
	case 'a':
		return t.Format("Mon")
	case 'A':
		return t.Format("Monday")
	case 'b':
		return t.Format("Jan")
	case 'B':
		return t.Format("January")
	case 'd':
		return fmt.Sprintf("%02d", t.Day())
	case 'j':
		return fmt.Sprintf("%03d", t.YearDay())
	case 'y':
		return t.Format("06")
	case 'Y':
		return t.Format("2006")
	case 'm':
		return fmt.Sprintf("%02d", int(t.Month()))
	case 'H':
		return fmt.Sprintf("%02d", t.Hour())
	case 'M':
		return fmt.Sprintf("%02d", t.Minute())
	case 'S':
		return fmt.Sprintf("%02d", t.Second())
	case 'U':
		return strconv.FormatInt(t.Unix(), 10)
	default:
		return ""
	}
}
