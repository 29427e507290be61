package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartThenRequestShutdownStopsRunCleanly(t *testing.T) {
	workDir := t.TempDir()
	s, err := Start(context.Background(), Config{
		WorkDir:          workDir,
		RescanTime:       20 * time.Millisecond,
		HeartbeatTimeout: time.Second,
	})
	require.NoError(t, err)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- s.Run(context.Background()) }()

	// let the main loop tick at least once before asking it to stop
	time.Sleep(50 * time.Millisecond)
	s.RequestShutdown()

	select {
	case err := <-runErrCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after RequestShutdown")
	}

	_, statErr := os.Stat(filepath.Join(workDir, "fifo", "AFD_ACTIVE"))
	require.True(t, os.IsNotExist(statErr), "active marker should be unlinked after shutdown")
}

func TestStartFailsWhenAlreadyClaimed(t *testing.T) {
	workDir := t.TempDir()
	s, err := Start(context.Background(), Config{WorkDir: workDir, RescanTime: time.Second})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	_, err = Start(context.Background(), Config{WorkDir: workDir, RescanTime: time.Second})
	require.Error(t, err)
}

func TestEnsureSubtreeCreatesExpectedLayout(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, ensureSubtree(workDir))
	for _, d := range []string{"fifo", "log", "archive", "files/outgoing", "files/incoming/ls_data"} {
		info, err := os.Stat(filepath.Join(workDir, d))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}
