package handling

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afdist/afd/internal/dedup"
)

func newTestDedupStore(t *testing.T) *dedup.Store {
	t.Helper()
	s, err := dedup.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newBatch(t *testing.T, files map[string]string) *Batch {
	dir := t.TempDir()
	names := make([]string, 0, len(files))
	var total int64
	for name, content := range files {
		writeFile(t, dir, name, content)
		names = append(names, name)
		total += int64(len(content))
	}
	return &Batch{Dir: dir, FilesToSend: names, TotalSize: total}
}

func TestBasenameStripsAtFirstDot(t *testing.T) {
	b := newBatch(t, map[string]string{"file.1.ext": "x"})
	err := Run(b, []Option{{ID: "basename"}}, Deps{})
	require.NoError(t, err)
	require.Len(t, b.FilesToSend, 1)
	assert.Equal(t, "file", b.FilesToSend[0])
}

func TestExtensionStripsAtLastDot(t *testing.T) {
	b := newBatch(t, map[string]string{"file.1.ext": "x"})
	err := Run(b, []Option{{ID: "extension"}}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "file.1", b.FilesToSend[0])
}

func TestPrefixAddAndDel(t *testing.T) {
	b := newBatch(t, map[string]string{"a.dat": "x"})
	require.NoError(t, Run(b, []Option{{ID: "prefix", Args: []string{"add", "PX"}}}, Deps{}))
	assert.Equal(t, "PXa.dat", b.FilesToSend[0])

	require.NoError(t, Run(b, []Option{{ID: "prefix", Args: []string{"del", "PX"}}}, Deps{}))
	assert.Equal(t, "a.dat", b.FilesToSend[0])
}

func TestToupperTolower(t *testing.T) {
	b := newBatch(t, map[string]string{"MixedCase.txt": "x"})
	require.NoError(t, Run(b, []Option{{ID: "tolower"}}, Deps{}))
	assert.Equal(t, "mixedcase.txt", b.FilesToSend[0])
	require.NoError(t, Run(b, []Option{{ID: "toupper"}}, Deps{}))
	assert.Equal(t, "MIXEDCASE.TXT", b.FilesToSend[0])
}

func TestCollisionAppendsNumericSuffixWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.1", "first")
	writeFile(t, dir, "a.2", "second")
	b := &Batch{Dir: dir, FilesToSend: []string{"a.1", "a.2"}, TotalSize: 11}

	require.NoError(t, Run(b, []Option{{ID: "basename"}}, Deps{}))
	assert.ElementsMatch(t, []string{"a", "a;1"}, b.FilesToSend)
}

func TestCollisionOverwriteSubtractsSize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.1", "xx")
	writeFile(t, dir, "a.2", "y")
	b := &Batch{Dir: dir, FilesToSend: []string{"a.1", "a.2"}, TotalSize: 3}

	require.NoError(t, Run(b, []Option{{ID: "basename", Args: []string{"overwrite"}}}, Deps{}))
	assert.Equal(t, []string{"a"}, b.FilesToSend)
}

func TestRenameRuleAppliesFirstMatchingPattern(t *testing.T) {
	b := newBatch(t, map[string]string{"report.txt": "x"})
	deps := Deps{RenameRules: map[string][]RenameRule{
		"default": {{Pattern: "*.txt", Replacement: "renamed_*"}},
	}}
	require.NoError(t, Run(b, []Option{{ID: "rename", Args: []string{"default"}}}, deps))
	assert.Equal(t, "renamed_report.txt", b.FilesToSend[0])
}

func TestRenameRuleMissingIsSkippedWithWarning(t *testing.T) {
	b := newBatch(t, map[string]string{"report.txt": "x"})
	err := Run(b, []Option{{ID: "rename", Args: []string{"does-not-exist"}}}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "report.txt", b.FilesToSend[0])
}

func TestDupcheckDropsRepeatedContentSilently(t *testing.T) {
	b := newBatch(t, map[string]string{"a.dat": "same"})
	store := newTestDedupStore(t)
	deps := Deps{Dedup: store, Now: func() time.Time { return time.Unix(100, 0) }}

	require.NoError(t, Run(b, []Option{{ID: "dupcheck", Args: []string{"3600"}}}, deps))
	assert.Len(t, b.FilesToSend, 1)

	b2 := newBatch(t, map[string]string{"a.dat": "same"})
	require.NoError(t, Run(b2, []Option{{ID: "dupcheck", Args: []string{"3600"}}}, deps))
	assert.Empty(t, b2.FilesToSend)
}

func TestConvertAppliesNamedConversion(t *testing.T) {
	b := newBatch(t, map[string]string{"bulletin.txt": "hello"})
	require.NoError(t, Run(b, []Option{{ID: "convert", Args: []string{"sohetx"}}}, Deps{}))
	got, err := os.ReadFile(filepath.Join(b.Dir, b.FilesToSend[0]))
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), got[0])
}

func TestAssembleConcatenatesAndFrames(t *testing.T) {
	b := newBatch(t, map[string]string{"one": "AAA", "two": "BBB"})
	deps := Deps{Now: func() time.Time { return time.Unix(0, 0) }}
	require.NoError(t, Run(b, []Option{{ID: "assemble", Args: []string{"WMO"}}}, deps))
	require.Len(t, b.FilesToSend, 1)
	got, err := os.ReadFile(filepath.Join(b.Dir, b.FilesToSend[0]))
	require.NoError(t, err)
	assert.Contains(t, string(got), "AAA")
	assert.Contains(t, string(got), "BBB")
}

func TestExtractSplitsWMOBulletins(t *testing.T) {
	hdr1 := "0000000301"
	hdr2 := "0000000301"
	content := hdr1 + "AAA" + hdr2 + "BBB"
	b := newBatch(t, map[string]string{"container": content})
	require.NoError(t, Run(b, []Option{{ID: "extract", Args: []string{"WMO"}}}, Deps{}))
	assert.Len(t, b.FilesToSend, 2)
}

func TestExpandAssembleNameRuleHandlesSequenceAndTimeFields(t *testing.T) {
	got := expandAssembleNameRule("bulletin_%n_%tY%tm%td", 7, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "bulletin_0007_20260731", got)
}

func TestExpandAssembleNameRuleUnknownEscapeIsEmpty(t *testing.T) {
	got := expandAssembleNameRule("x%tq y", 0, time.Now())
	assert.Equal(t, "x y", got)
}

func TestUnknownOptionIsLoggedNotPropagated(t *testing.T) {
	b := newBatch(t, map[string]string{"a": "x"})
	err := Run(b, []Option{{ID: "not-a-real-option"}}, Deps{})
	assert.NoError(t, err) // per-step errors are logged, not propagated
}

func TestExecDModeRemovesFilesFromDiskOnNonzeroExit(t *testing.T) {
	b := newBatch(t, map[string]string{"a": "x", "b": "y"})
	dir := b.Dir
	err := Run(b, []Option{{ID: "exec", Args: []string{"D", "false"}}}, Deps{})
	require.NoError(t, err)

	assert.Empty(t, b.FilesToSend)
	assert.Zero(t, b.TotalSize)
	for _, name := range []string{"a", "b"} {
		_, statErr := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(statErr), "%s should have been removed from disk", name)
	}
}

func TestParseOptionsSkipsBlankAndCommentLines(t *testing.T) {
	opts, err := ParseOptions([]string{"", "# comment", "basename", "prefix add PX"})
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, "basename", opts[0].ID)
	assert.Equal(t, "prefix", opts[1].ID)
	assert.Equal(t, []string{"add", "PX"}, opts[1].Args)
}
