// Package statusmetrics exports the shared status store (§3.1's FSA, FRA
// and AFD_STATUS) as Prometheus metrics. It is a pull-based snapshot
// exporter rather than a set of maintained counters: every Collect call
// reads the arenas under a shared lock and emits gauges/counters from
// whatever it finds, so a scrape never lags behind or duplicates the
// daemon's own bookkeeping.
package statusmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afdist/afd/internal/status"
)

// Collector adapts a *status.Store to the prometheus.Collector interface.
type Collector struct {
	store *status.Store

	hostActiveTransfers *prometheus.Desc
	hostFilesSent       *prometheus.Desc
	hostBytesSent       *prometheus.Desc
	hostErrorCounter    *prometheus.Desc
	hostJobsQueued      *prometheus.Desc
	hostLastConnection  *prometheus.Desc

	dirFilesInDir    *prometheus.Desc
	dirBytesInDir    *prometheus.Desc
	dirFilesQueued   *prometheus.Desc
	dirBytesInQueue  *prometheus.Desc
	dirFilesReceived *prometheus.Desc
	dirBytesReceived *prometheus.Desc
	dirLastRetrieval *prometheus.Desc
	dirNoOfProcess   *prometheus.Desc

	globalForkCounter   *prometheus.Desc
	globalJobsInQueue   *prometheus.Desc
	globalHeartbeat     *prometheus.Desc
	globalShutdownState *prometheus.Desc
}

// New builds a Collector reading from store. Register it with a
// prometheus.Registry (or prometheus.MustRegister for the default one).
func New(store *status.Store) *Collector {
	return &Collector{
		store: store,

		hostActiveTransfers: prometheus.NewDesc("afd_host_active_transfers", "Number of transfer slots currently in use for this host.", []string{"host"}, nil),
		hostFilesSent:       prometheus.NewDesc("afd_host_files_sent_total", "Total number of files successfully sent to this host.", []string{"host"}, nil),
		hostBytesSent:       prometheus.NewDesc("afd_host_bytes_sent_total", "Total number of bytes successfully sent to this host.", []string{"host"}, nil),
		hostErrorCounter:    prometheus.NewDesc("afd_host_error_counter", "Consecutive transfer errors recorded for this host.", []string{"host"}, nil),
		hostJobsQueued:      prometheus.NewDesc("afd_host_jobs_queued", "Jobs currently queued for this host.", []string{"host"}, nil),
		hostLastConnection:  prometheus.NewDesc("afd_host_last_connection_timestamp_seconds", "Unix timestamp of the last successful connection to this host.", []string{"host"}, nil),

		dirFilesInDir:    prometheus.NewDesc("afd_dir_files_in_dir", "Files currently present in this directory.", []string{"dir"}, nil),
		dirBytesInDir:    prometheus.NewDesc("afd_dir_bytes_in_dir", "Bytes currently present in this directory.", []string{"dir"}, nil),
		dirFilesQueued:   prometheus.NewDesc("afd_dir_files_queued", "Files from this directory currently queued for transfer.", []string{"dir"}, nil),
		dirBytesInQueue:  prometheus.NewDesc("afd_dir_bytes_in_queue", "Bytes from this directory currently queued for transfer.", []string{"dir"}, nil),
		dirFilesReceived: prometheus.NewDesc("afd_dir_files_received_total", "Total files ever received into this directory.", []string{"dir"}, nil),
		dirBytesReceived: prometheus.NewDesc("afd_dir_bytes_received_total", "Total bytes ever received into this directory.", []string{"dir"}, nil),
		dirLastRetrieval: prometheus.NewDesc("afd_dir_last_retrieval_timestamp_seconds", "Unix timestamp of this directory's last retrieval cycle.", []string{"dir"}, nil),
		dirNoOfProcess:   prometheus.NewDesc("afd_dir_processes_running", "Worker processes currently assigned to this directory.", []string{"dir"}, nil),

		globalForkCounter:   prometheus.NewDesc("afd_fork_counter_total", "Total number of worker processes forked since startup.", nil, nil),
		globalJobsInQueue:   prometheus.NewDesc("afd_jobs_in_queue", "Sum of jobs queued across all hosts.", nil, nil),
		globalHeartbeat:     prometheus.NewDesc("afd_heartbeat", "Monotonically increasing supervisor heartbeat counter.", nil, nil),
		globalShutdownState: prometheus.NewDesc("afd_shutdown_requested", "1 if a shutdown has been requested, 0 otherwise.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hostActiveTransfers
	ch <- c.hostFilesSent
	ch <- c.hostBytesSent
	ch <- c.hostErrorCounter
	ch <- c.hostJobsQueued
	ch <- c.hostLastConnection
	ch <- c.dirFilesInDir
	ch <- c.dirBytesInDir
	ch <- c.dirFilesQueued
	ch <- c.dirBytesInQueue
	ch <- c.dirFilesReceived
	ch <- c.dirBytesReceived
	ch <- c.dirLastRetrieval
	ch <- c.dirNoOfProcess
	ch <- c.globalForkCounter
	ch <- c.globalJobsInQueue
	ch <- c.globalHeartbeat
	ch <- c.globalShutdownState
}

// Collect implements prometheus.Collector, scanning every host and
// directory record under a shared lock.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.collectHosts(ch)
	c.collectDirs(ch)
	c.collectGlobal(ch)
}

func (c *Collector) collectHosts(ch chan<- prometheus.Metric) {
	for i := 0; i < c.store.Hosts.Count(); i++ {
		guard, err := c.store.Hosts.LockRecord(i, status.Shared)
		if err != nil {
			continue
		}
		buf, err := c.store.Hosts.Record(i)
		if err != nil {
			guard.Unlock()
			continue
		}
		h, err := status.DecodeHost(buf)
		guard.Unlock()
		if err != nil || h.Alias == "" {
			continue
		}

		ch <- prometheus.MustNewConstMetric(c.hostActiveTransfers, prometheus.GaugeValue, float64(h.ActiveTransfers), h.Alias)
		ch <- prometheus.MustNewConstMetric(c.hostFilesSent, prometheus.CounterValue, float64(h.TotalFileCounter), h.Alias)
		ch <- prometheus.MustNewConstMetric(c.hostBytesSent, prometheus.CounterValue, float64(h.TotalFileSize), h.Alias)
		ch <- prometheus.MustNewConstMetric(c.hostErrorCounter, prometheus.GaugeValue, float64(h.ErrorCounter), h.Alias)
		ch <- prometheus.MustNewConstMetric(c.hostJobsQueued, prometheus.GaugeValue, float64(h.JobsQueued), h.Alias)
		ch <- prometheus.MustNewConstMetric(c.hostLastConnection, prometheus.GaugeValue, float64(h.LastConnection), h.Alias)
	}
}

func (c *Collector) collectDirs(ch chan<- prometheus.Metric) {
	for i := 0; i < c.store.Dirs.Count(); i++ {
		guard, err := c.store.Dirs.LockRecord(i, status.Shared)
		if err != nil {
			continue
		}
		buf, err := c.store.Dirs.Record(i)
		if err != nil {
			guard.Unlock()
			continue
		}
		d, err := status.DecodeDir(buf)
		guard.Unlock()
		if err != nil || d.Alias == "" {
			continue
		}

		ch <- prometheus.MustNewConstMetric(c.dirFilesInDir, prometheus.GaugeValue, float64(d.FilesInDir), d.Alias)
		ch <- prometheus.MustNewConstMetric(c.dirBytesInDir, prometheus.GaugeValue, float64(d.BytesInDir), d.Alias)
		ch <- prometheus.MustNewConstMetric(c.dirFilesQueued, prometheus.GaugeValue, float64(d.FilesQueued), d.Alias)
		ch <- prometheus.MustNewConstMetric(c.dirBytesInQueue, prometheus.GaugeValue, float64(d.BytesInQueue), d.Alias)
		ch <- prometheus.MustNewConstMetric(c.dirFilesReceived, prometheus.CounterValue, float64(d.FilesReceived), d.Alias)
		ch <- prometheus.MustNewConstMetric(c.dirBytesReceived, prometheus.CounterValue, float64(d.BytesReceived), d.Alias)
		ch <- prometheus.MustNewConstMetric(c.dirLastRetrieval, prometheus.GaugeValue, float64(d.LastRetrieval), d.Alias)
		ch <- prometheus.MustNewConstMetric(c.dirNoOfProcess, prometheus.GaugeValue, float64(d.NoOfProcess), d.Alias)
	}
}

func (c *Collector) collectGlobal(ch chan<- prometheus.Metric) {
	guard, err := c.store.Global.LockRecord(0, status.Shared)
	if err != nil {
		return
	}
	buf, err := c.store.Global.Record(0)
	if err != nil {
		guard.Unlock()
		return
	}
	g, err := status.DecodeGlobal(buf)
	guard.Unlock()
	if err != nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.globalForkCounter, prometheus.CounterValue, float64(g.ForkCounter))
	ch <- prometheus.MustNewConstMetric(c.globalJobsInQueue, prometheus.GaugeValue, float64(g.JobsInQueue))
	ch <- prometheus.MustNewConstMetric(c.globalHeartbeat, prometheus.CounterValue, float64(g.Heartbeat))
	shutdown := 0.0
	if g.ShutdownRequested {
		shutdown = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.globalShutdownState, prometheus.GaugeValue, shutdown)
}

// Handler returns an HTTP handler serving store's metrics on a registry of
// their own, so a scrape of afd's /metrics endpoint never picks up the
// default process/Go-runtime collectors registered elsewhere in the binary.
func Handler(store *status.Store) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(New(store))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
