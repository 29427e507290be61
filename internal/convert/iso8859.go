package convert

import (
	"bytes"
	"io"

	"golang.org/x/text/encoding/charmap"
)

// iso8859Ascii maps characters outside 7-bit ASCII to a bounded (at most
// three byte) ASCII transliteration, covering the Latin-1 punctuation and
// accented-letter ranges bulletins from European sources commonly carry.
var iso8859Ascii = map[rune]string{
	' ': " ", '©': "(c)", '®': "(r)",
	'À': "A", 'Á': "A", 'Â': "A", 'Ã': "A", 'Ä': "Ae", 'Å': "A",
	'Ç': "C", 'È': "E", 'É': "E", 'Ê': "E", 'Ë': "E",
	'Ì': "I", 'Í': "I", 'Î': "I", 'Ï': "I",
	'Ñ': "N", 'Ò': "O", 'Ó': "O", 'Ô': "O", 'Õ': "O", 'Ö': "Oe",
	'Ø': "O", 'Ù': "U", 'Ú': "U", 'Û': "U", 'Ü': "Ue", 'Ý': "Y",
	'ß': "ss",
	'à': "a", 'á': "a", 'â': "a", 'ã': "a", 'ä': "ae", 'å': "a",
	'ç': "c", 'è': "e", 'é': "e", 'ê': "e", 'ë': "e",
	'ì': "i", 'í': "i", 'î': "i", 'ï': "i",
	'ñ': "n", 'ò': "o", 'ó': "o", 'ô': "o", 'õ': "o", 'ö': "oe",
	'ø': "o", 'ù': "u", 'ú': "u", 'û': "u", 'ü': "ue", 'ý': "y",
	'ÿ': "y",
}

// Iso8859ToASCII decodes src as ISO-8859-1 and re-encodes it as 7-bit ASCII,
// transliterating accented and punctuation characters via iso8859Ascii and
// dropping anything with no mapping.
func Iso8859ToASCII(src []byte, w io.Writer) (int64, error) {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(src)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	for _, r := range string(decoded) {
		if r < 0x80 {
			buf.WriteRune(r)
			continue
		}
		if repl, ok := iso8859Ascii[r]; ok {
			buf.WriteString(repl)
		}
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}
