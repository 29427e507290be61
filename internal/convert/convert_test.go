package convert

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSohetxWrapsUnframedInput(t *testing.T) {
	var buf bytes.Buffer
	n, err := Sohetx([]byte("hello"), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(sohHdr)+5+len(etxTlr)), n)
	assert.True(t, hasSohFraming(buf.Bytes()))
}

func TestSohetxIdempotentOnFramedInput(t *testing.T) {
	framed := append(append(append([]byte{}, sohHdr...), []byte("body")...), etxTlr...)
	var buf bytes.Buffer
	_, err := Sohetx(framed, &buf)
	require.NoError(t, err)
	assert.Equal(t, framed, buf.Bytes())
}

func TestWmoStripsFramingAndPrependsHeader(t *testing.T) {
	framed := append(append(append([]byte{}, sohHdr...), []byte("body")...), etxTlr...)
	var buf bytes.Buffer
	_, err := Wmo(framed, &buf)
	require.NoError(t, err)
	out := buf.Bytes()
	require.True(t, hasWMOHeader(out))
	assert.Equal(t, "body", string(out[10:]))
	assert.Equal(t, "00000004", string(out[:8]))
}

func TestWmoIsNoOpOnAlreadyWrappedInput(t *testing.T) {
	framed := append(append(append([]byte{}, sohHdr...), []byte("body")...), etxTlr...)
	var first bytes.Buffer
	_, err := Wmo(framed, &first)
	require.NoError(t, err)

	var second bytes.Buffer
	_, err = Wmo(first.Bytes(), &second)
	require.NoError(t, err)
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestSohetxwmoIsIdempotent(t *testing.T) {
	var first bytes.Buffer
	_, err := Sohetxwmo([]byte("body"), &first)
	require.NoError(t, err)

	var second bytes.Buffer
	_, err = Sohetxwmo(first.Bytes(), &second)
	require.NoError(t, err)
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestSohetx2wmo0KeepsFramingPerBulletin(t *testing.T) {
	src := append(append([]byte{soh}, []byte("AAA")...), etx)
	src = append(src, append(append([]byte{soh}, []byte("BBB")...), etx)...)
	var buf bytes.Buffer
	n, err := Sohetx2wmo0(src, &buf)
	require.NoError(t, err)
	assert.Positive(t, n)
	out := buf.String()
	assert.Contains(t, out, "AAA")
	assert.Contains(t, out, "BBB")
}

func TestSohetx2wmo1DropsFraming(t *testing.T) {
	src := append(append([]byte{soh}, []byte("CCC")...), etx)
	var buf bytes.Buffer
	_, err := Sohetx2wmo1(src, &buf)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), string(soh))
}

func TestSohetx2wmo0FramesUnterminatedTrailingBulletin(t *testing.T) {
	src := append(append([]byte{soh}, []byte("AAA")...), etx)
	src = append(src, append([]byte{soh}, []byte("TAIL")...)...) // no closing ETX
	var buf bytes.Buffer
	_, err := Sohetx2wmo0(src, &buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "AAA")
	assert.Contains(t, out, "TAIL")
}

func TestSohetx2wmo1FramesUnterminatedBulletinUpToNextSOH(t *testing.T) {
	// Neither bulletin closes with ETX; the first must be cut off at the
	// second bulletin's SOH rather than swallowing it.
	src := append(append([]byte{soh}, []byte("HEAD")...), soh)
	src = append(src, []byte("TAIL")...)
	var buf bytes.Buffer
	_, err := Sohetx2wmo1(src, &buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "HEAD")
	assert.Contains(t, out, "TAIL")
	assert.NotContains(t, out, "HEAD"+string(soh)+"TAIL")
}

func TestUnix2dosThenDos2unixRoundTrips(t *testing.T) {
	src := []byte("line1\nline2\nline3")
	var dos bytes.Buffer
	_, err := Unix2dos(src, &dos)
	require.NoError(t, err)
	assert.Equal(t, "line1\r\nline2\r\nline3", dos.String())

	var unix bytes.Buffer
	_, err = Dos2unix(dos.Bytes(), &unix)
	require.NoError(t, err)
	assert.Equal(t, string(src), unix.String())
}

func TestLf2crcrlfThenCrcrlf2lfRoundTrips(t *testing.T) {
	src := []byte("a\nb\nc")
	var wrapped bytes.Buffer
	_, err := Lf2crcrlf(src, &wrapped)
	require.NoError(t, err)
	assert.Equal(t, "a\r\r\nb\r\r\nc", wrapped.String())

	var back bytes.Buffer
	_, err = Crcrlf2lf(wrapped.Bytes(), &back)
	require.NoError(t, err)
	assert.Equal(t, string(src), back.String())
}

func TestIso8859ToASCIITransliterates(t *testing.T) {
	src := []byte{0xC4} // Ä in Latin-1
	var buf bytes.Buffer
	_, err := Iso8859ToASCII(src, &buf)
	require.NoError(t, err)
	assert.Equal(t, "Ae", buf.String())
}

func TestMrz2wmoSplitsSegments(t *testing.T) {
	src := append([]byte("GRIB"), []byte("data1")...)
	src = append(src, append([]byte("BUFR"), []byte("data2")...)...)
	var buf bytes.Buffer
	n, err := Mrz2wmo(src, &buf)
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Contains(t, buf.String(), "GRIBdata1")
	assert.Contains(t, buf.String(), "BUFRdata2")
}

func TestByNameResolvesRegisteredConverters(t *testing.T) {
	f, ok := ByName("wmo")
	require.True(t, ok)
	require.NotNil(t, f)
	_, ok = ByName("not-a-real-converter")
	assert.False(t, ok)
}

func TestToFileIsAtomicAndPreservesOriginalOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bulletin.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	n, err := ToFile(path, Sohetx)
	require.NoError(t, err)
	assert.Positive(t, n)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, hasSohFraming(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1) // no leftover temp file
}
