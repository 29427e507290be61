package statusmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afdist/afd/internal/status"
)

func newTestStore(t *testing.T) *status.Store {
	t.Helper()
	store, err := status.Open(t.TempDir(), 2, 2)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// gather runs c through a private registry and maps every metric name to
// the float value of its last sample found, so tests can
// assert on a handful of names without parsing the full text exposition.
func gather(t *testing.T, c *Collector) map[string]float64 {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			out[mf.GetName()] = valueOf(m)
		}
	}
	return out
}

func valueOf(m *dto.Metric) float64 {
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	default:
		return 0
	}
}

func TestCollectEmitsHostMetrics(t *testing.T) {
	store := newTestStore(t)
	idx, err := store.EnsureHost("ftp.example.com")
	require.NoError(t, err)
	require.NoError(t, store.WithHostLock(idx, func(h *status.HostRecord) error {
		h.TotalFileCounter = 7
		h.TotalFileSize = 4096
		h.ActiveTransfers = 2
		return nil
	}))

	values := gather(t, New(store))
	assert.Equal(t, 7.0, values["afd_host_files_sent_total"])
	assert.Equal(t, 4096.0, values["afd_host_bytes_sent_total"])
	assert.Equal(t, 2.0, values["afd_host_active_transfers"])
}

func TestCollectEmitsDirMetrics(t *testing.T) {
	store := newTestStore(t)
	idx, err := store.EnsureDir("incoming")
	require.NoError(t, err)
	require.NoError(t, store.WithDirLock(idx, func(d *status.DirRecord) error {
		d.FilesInDir = 3
		d.BytesInDir = 1024
		return nil
	}))

	values := gather(t, New(store))
	assert.Equal(t, 3.0, values["afd_dir_files_in_dir"])
	assert.Equal(t, 1024.0, values["afd_dir_bytes_in_dir"])
}

func TestCollectEmitsGlobalMetrics(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.WithGlobalLock(func(g *status.GlobalRecord) error {
		g.ForkCounter = 12
		g.Heartbeat = 99
		g.ShutdownRequested = true
		return nil
	}))

	values := gather(t, New(store))
	assert.Equal(t, 12.0, values["afd_fork_counter_total"])
	assert.Equal(t, 99.0, values["afd_heartbeat"])
	assert.Equal(t, 1.0, values["afd_shutdown_requested"])
}

func TestCollectSkipsEmptyRecordSlots(t *testing.T) {
	store := newTestStore(t)
	values := gather(t, New(store))
	assert.NotContains(t, values, "afd_host_files_sent_total")
	assert.NotContains(t, values, "afd_dir_files_in_dir")
	assert.Contains(t, values, "afd_fork_counter_total") // global record always exists
}
