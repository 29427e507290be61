package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afdist/afd/internal/status"
)

func TestLinkCountOfRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1, linkCountOf(fi))
}

func TestApplyHostPauseTransitionsSetsAutoPauseOnErrorCeiling(t *testing.T) {
	h := &status.HostRecord{Alias: "h1", ErrorCounter: 5, MaxErrors: 5}
	applyHostPauseTransitions(h, time.Now())
	assert.NotZero(t, h.Status&status.AutoPauseQueue)
}

func TestApplyHostPauseTransitionsClearsAutoPauseBelowCeiling(t *testing.T) {
	h := &status.HostRecord{Alias: "h1", ErrorCounter: 0, MaxErrors: 5, Status: status.AutoPauseQueue | status.ErrorOffline}
	applyHostPauseTransitions(h, time.Now())
	assert.Zero(t, h.Status&status.AutoPauseQueue)
	assert.Zero(t, h.Status&status.ErrorOffline)
}

func TestApplyHostPauseTransitionsSetsWarnTimeReached(t *testing.T) {
	now := time.Now()
	h := &status.HostRecord{Alias: "h1", WarnTime: 60, LastConnection: now.Add(-2 * time.Minute).Unix()}
	applyHostPauseTransitions(h, now)
	assert.NotZero(t, h.Status&status.WarnTimeReached)
}

func TestApplyHostPauseTransitionsClearsWarnTimeReachedOnReconnect(t *testing.T) {
	now := time.Now()
	h := &status.HostRecord{Alias: "h1", WarnTime: 60, LastConnection: now.Unix(), Status: status.WarnTimeReached}
	applyHostPauseTransitions(h, now)
	assert.Zero(t, h.Status&status.WarnTimeReached)
}
