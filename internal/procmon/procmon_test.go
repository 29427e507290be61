package procmon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimThenSecondClaimFails(t *testing.T) {
	dir := t.TempDir()
	a, err := Claim(dir, time.Second)
	require.NoError(t, err)
	defer a.Release()

	_, err = Claim(dir, time.Second)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestClaimAfterReleaseSucceeds(t *testing.T) {
	dir := t.TempDir()
	a, err := Claim(dir, time.Second)
	require.NoError(t, err)
	require.NoError(t, a.Release())

	b, err := Claim(dir, time.Second)
	require.NoError(t, err)
	defer b.Release()
}

func TestTickIsMonotone(t *testing.T) {
	dir := t.TempDir()
	a, err := Claim(dir, time.Second)
	require.NoError(t, err)
	defer a.Release()

	assert.Equal(t, uint64(0), a.Heartbeat())
	require.NoError(t, a.Tick())
	require.NoError(t, a.Tick())
	assert.Equal(t, uint64(2), a.Heartbeat())
}

func TestRecordPIDAndListLivePIDs(t *testing.T) {
	dir := t.TempDir()
	a, err := Claim(dir, time.Second)
	require.NoError(t, err)
	defer a.Release()

	require.NoError(t, a.RecordPID(0, 1234, "afdd_archive_watch"))
	require.NoError(t, a.RecordPID(1, 5678, "afdd_amg"))

	pids := a.ListLivePIDs()
	assert.Contains(t, pids, int32(1234))
	assert.Contains(t, pids, int32(5678))
}

func TestRequestShutdown(t *testing.T) {
	dir := t.TempDir()
	a, err := Claim(dir, time.Second)
	require.NoError(t, err)
	defer a.Release()

	assert.False(t, a.ShutdownRequested())
	require.NoError(t, a.RequestShutdown())
	assert.True(t, a.ShutdownRequested())
}

func TestPeekWithoutClaiming(t *testing.T) {
	dir := t.TempDir()
	a, err := Claim(dir, time.Second)
	require.NoError(t, err)
	require.NoError(t, a.RecordPID(0, 999, "afdd_fd"))
	require.NoError(t, a.Tick())

	pid, hb, pids, err := Peek(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), hb)
	assert.Contains(t, pids, int32(999))
	assert.NotZero(t, pid)

	require.NoError(t, a.Release())
}
