package dedup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAndRecordFlagsRepeatContent(t *testing.T) {
	workDir := t.TempDir()
	s, err := Open(workDir)
	require.NoError(t, err)
	defer s.Close()

	path := filepath.Join(t.TempDir(), "bulletin.txt")
	require.NoError(t, os.WriteFile(path, []byte("same content"), 0o644))

	now := time.Unix(1000, 0)
	dup, err := s.CheckAndRecord(path, now, time.Hour)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = s.CheckAndRecord(path, now.Add(time.Minute), time.Hour)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestCheckAndRecordExpiresAfterTimeout(t *testing.T) {
	workDir := t.TempDir()
	s, err := Open(workDir)
	require.NoError(t, err)
	defer s.Close()

	path := filepath.Join(t.TempDir(), "bulletin.txt")
	require.NoError(t, os.WriteFile(path, []byte("expiring content"), 0o644))

	now := time.Unix(2000, 0)
	_, err = s.CheckAndRecord(path, now, time.Minute)
	require.NoError(t, err)

	dup, err := s.CheckAndRecord(path, now.Add(2*time.Hour), time.Minute)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestDifferentContentIsNotADuplicate(t *testing.T) {
	workDir := t.TempDir()
	s, err := Open(workDir)
	require.NoError(t, err)
	defer s.Close()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("beta"), 0o644))

	now := time.Unix(3000, 0)
	dup, err := s.CheckAndRecord(a, now, time.Hour)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = s.CheckAndRecord(b, now, time.Hour)
	require.NoError(t, err)
	assert.False(t, dup)
}
