package status

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostRecordRoundTrip(t *testing.T) {
	h := &HostRecord{
		HostID: 42, Alias: "ftp.example.com", Toggle: 1, Protocol: 3,
		ActiveTransfers: 2, TotalFileCounter: 100, TotalFileSize: 1 << 20,
		ErrorCounter: 1, JobsQueued: 5, MaxErrors: 10, WarnTime: 3600,
		TransferTimeout: 60, RetryInterval: 30, HostToggleStr: "12",
		LastConnection: 1000, Status: PauseQueue | WarnTimeReached,
	}
	h.Slots[0] = TransferSlot{NoOfFiles: 3, BytesSend: 4096, ConnectStatus: 1, ProcID: 7, JobID: 9, FileNameInUse: "a.dat"}

	buf := make([]byte, HostRecordSize())
	require.NoError(t, EncodeHost(buf, h))
	got, err := DecodeHost(buf)
	require.NoError(t, err)
	assert.Equal(t, h.Alias, got.Alias)
	assert.Equal(t, h.TotalFileSize, got.TotalFileSize)
	assert.Equal(t, h.Status, got.Status)
	assert.Equal(t, h.Slots[0].FileNameInUse, got.Slots[0].FileNameInUse)
	assert.True(t, got.Status&PauseQueue != 0)
}

func TestDirRecordRoundTrip(t *testing.T) {
	d := &DirRecord{
		Alias: "incoming", URL: "http://example.com/data/", FSAPos: 3,
		FilesInDir: 10, BytesInDir: 2048, MaxCopiedFiles: 50,
		IgnoreSize: 1024, IgnoreSizeSign: GreaterThan,
		StupidModeValue: GetOnceOnly, Remove: true, DirFlag: AcceptDotFiles,
	}
	buf := make([]byte, DirRecordSize())
	require.NoError(t, EncodeDir(buf, d))
	got, err := DecodeDir(buf)
	require.NoError(t, err)
	assert.Equal(t, d.Alias, got.Alias)
	assert.Equal(t, d.URL, got.URL)
	assert.Equal(t, d.IgnoreSizeSign, got.IgnoreSizeSign)
	assert.True(t, got.Remove)
	assert.Equal(t, GetOnceOnly, got.StupidModeValue)
}

func TestGtLtSignMatches(t *testing.T) {
	assert.True(t, Equal.Matches(5, 0))       // zero threshold always matches
	assert.True(t, LessThan.Matches(4, 5))
	assert.False(t, LessThan.Matches(6, 5))
	assert.True(t, GreaterThan.Matches(6, 5))
	assert.True(t, Equal.Matches(5, 5))
}

func TestArenaCreateAttachAndStaleness(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena")

	a, err := Create(path, magicHost, HostRecordSize(), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, a.Count())

	b, err := Attach(path, magicHost, HostRecordSize())
	require.NoError(t, err)

	require.NoError(t, a.Resize(8))
	assert.True(t, b.Stale())

	_, err = b.Record(0)
	assert.Error(t, err)

	require.NoError(t, a.Detach(true))
	require.NoError(t, b.Detach(false))
}

func TestArenaAttachWrongMagicFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena")
	a, err := Create(path, magicHost, HostRecordSize(), 2)
	require.NoError(t, err)
	require.NoError(t, a.Detach(true))

	_, err = Attach(path, magicDir, DirRecordSize())
	assert.Error(t, err)
}

func TestLockRecordExclusiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena")
	a, err := Create(path, magicHost, HostRecordSize(), 2)
	require.NoError(t, err)
	defer a.Detach(true)

	g, err := a.LockRecord(0, Exclusive)
	require.NoError(t, err)
	require.NoError(t, g.Unlock())
}

func TestStoreEnsureHostAndLock(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 2, 2)
	require.NoError(t, err)
	defer s.Close()

	i, err := s.EnsureHost("host-a")
	require.NoError(t, err)
	j, err := s.EnsureHost("host-a")
	require.NoError(t, err)
	assert.Equal(t, i, j)

	require.NoError(t, s.WithHostLock(i, func(h *HostRecord) error {
		h.ErrorCounter = 3
		h.JobsQueued = 2
		return nil
	}))

	require.NoError(t, s.WithHostLock(i, func(h *HostRecord) error {
		assert.Equal(t, int32(3), h.ErrorCounter)
		return nil
	}))

	require.NoError(t, s.Reconcile())
	require.NoError(t, s.WithGlobalLock(func(g *GlobalRecord) error {
		assert.Equal(t, int64(2), g.JobsInQueue)
		return nil
	}))
}

func TestStoreEnsureHostGrowsArena(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 1, 1)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.EnsureHost("only-slot")
	require.NoError(t, err)
	_, err = s.EnsureHost("second-host")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.Hosts.Count(), 2)
}

func TestStoreEnsureDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 1, 1)
	require.NoError(t, err)
	defer s.Close()

	i, err := s.EnsureDir("incoming")
	require.NoError(t, err)
	require.NoError(t, s.WithDirLock(i, func(d *DirRecord) error {
		d.FilesInDir = 7
		return nil
	}))
	require.NoError(t, s.WithDirLock(i, func(d *DirRecord) error {
		assert.Equal(t, int64(7), d.FilesInDir)
		return nil
	}))
}
