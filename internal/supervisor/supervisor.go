// Package supervisor implements C6: the top-level lifecycle manager that
// brings up the shared status store, the process table, and the
// retrieval/handling/transfer workers in the fixed startup order of §4.6,
// runs the periodic main loop (heartbeat, zombie/restart policy,
// back-pressure, per-host pause), and tears everything down cleanly on
// shutdown.
package supervisor

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/afdist/afd/internal/afdconfig"
	"github.com/afdist/afd/internal/dedup"
	"github.com/afdist/afd/internal/handling"
	"github.com/afdist/afd/internal/logx"
	"github.com/afdist/afd/internal/procmon"
	"github.com/afdist/afd/internal/retrypacer"
	"github.com/afdist/afd/internal/status"
	"github.com/afdist/afd/internal/statusmetrics"
	"github.com/afdist/afd/internal/transfer"
)

// Fixed process-table slots, in §4.6's startup order.
const (
	slotSLOG = iota
	slotELOG
	slotRLOG
	slotTLOG
	slotTDBLOG
	slotArchive
	slotAMG
	slotFD
	slotAFDD
)

// Periodic check intervals of §4.6.
const (
	fullDirCheckInterval   = 5 * time.Minute
	actionDirCheckInterval = 1 * time.Minute
	maxShutdownWait        = 30 * time.Second
)

// Config configures one supervisor instance.
type Config struct {
	WorkDir          string
	RescanTime       time.Duration // AFD_RESCAN_TIME, the main loop's tick
	HeartbeatTimeout time.Duration
	Directories      []DirectoryJob
	Hosts            []HostConfig
	RenameRules      map[string][]handling.RenameRule
	EnableAFDD       bool
	AFDDAddr         string
}

// Supervisor is one running daemon instance bound to a working directory.
type Supervisor struct {
	cfg    Config
	store  *status.Store
	active *procmon.ActiveFile
	afdCfg *afdconfig.Config
	dedup  *dedup.Store

	hosts  map[string]transfer.Transport
	pacers map[string]*retrypacer.Pacer

	mu         sync.Mutex
	sequences  map[string]int
	amgStopped bool
	state      RunState

	cmdCh   chan Command
	batches chan batchJob

	workerWG sync.WaitGroup
	cancel   context.CancelFunc

	httpSrv *http.Server
}

// Start performs §4.6's startup sequence: create the working subtree,
// claim the active marker, open the shared status store, and launch every
// worker in fixed order.
func Start(ctx context.Context, cfg Config) (*Supervisor, error) {
	if cfg.RescanTime <= 0 {
		cfg.RescanTime = 10 * time.Second
	}
	if err := ensureSubtree(cfg.WorkDir); err != nil {
		return nil, err
	}

	active, err := procmon.Claim(cfg.WorkDir, cfg.HeartbeatTimeout)
	if err != nil {
		return nil, err
	}
	store, err := status.Open(cfg.WorkDir, 8, 8)
	if err != nil {
		active.Release()
		return nil, err
	}
	afdCfg, err := afdconfig.Load(cfg.WorkDir)
	if err != nil {
		store.Close()
		active.Release()
		return nil, err
	}
	dedupStore, err := dedup.Open(cfg.WorkDir)
	if err != nil {
		store.Close()
		active.Release()
		return nil, err
	}

	s := &Supervisor{
		cfg:       cfg,
		store:     store,
		active:    active,
		afdCfg:    afdCfg,
		dedup:     dedupStore,
		hosts:     map[string]transfer.Transport{},
		pacers:    map[string]*retrypacer.Pacer{},
		sequences: map[string]int{},
		state:     StateStartup,
		cmdCh:     make(chan Command, 16),
		batches:   make(chan batchJob, 64),
	}
	for _, h := range cfg.Hosts {
		s.hosts[h.Alias] = h.Transport
		if _, err := store.EnsureHost(h.Alias); err != nil {
			logx.Errorf(h.Alias, "failed to register host: %v", err)
		}
	}
	for _, d := range cfg.Directories {
		if _, err := store.EnsureDir(d.Alias); err != nil {
			logx.Errorf(d.Alias, "failed to register directory: %v", err)
		}
	}

	workCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	hostname, _ := os.Hostname()
	startTime := time.Now().Unix()
	_ = store.WithGlobalLock(func(g *status.GlobalRecord) error {
		g.Hostname = hostname
		g.StartTime = startTime
		g.WorkDir = cfg.WorkDir
		g.UserID = int32(os.Getuid())
		return nil
	})

	s.startWorkers(workCtx, s.buildWorkerSpecs())
	go notifyWatchdog(workCtx, func() bool { return !s.active.ShutdownRequested() })
	s.state = StateAll
	logx.Infof(nil, "STARTUP afd daemon in %s", cfg.WorkDir)
	return s, nil
}

func (s *Supervisor) buildWorkerSpecs() []workerSpec {
	logSink := func(name string, slot int) workerSpec {
		return workerSpec{slot: slot, name: name, critical: true, run: s.logSinkWorker(name)}
	}
	specs := []workerSpec{
		logSink("SLOG", slotSLOG),
		logSink("ELOG", slotELOG),
		logSink("RLOG", slotRLOG),
		logSink("TLOG", slotTLOG),
		logSink("TDBLOG", slotTDBLOG),
		{slot: slotArchive, name: "ARCHIVE_WATCHER", critical: true, run: s.archiveWatcherWorker},
		{slot: slotAMG, name: "AMG", critical: true, run: s.amgWorker},
		{slot: slotFD, name: "FD", critical: true, run: s.fdWorker},
	}
	if s.cfg.EnableAFDD {
		specs = append(specs, workerSpec{slot: slotAFDD, name: "AFDD", critical: false, run: s.afddWorker})
	}
	return specs
}

// logSinkWorker returns a no-op heartbeat worker standing in for one of
// the dedicated log-sink subprocesses (SLOG/ELOG/RLOG/TLOG/TDBLOG): in
// this single-binary port, logx already writes directly from whichever
// goroutine calls it, so the sink's only remaining job is to occupy its
// process-table slot and exit promptly on shutdown.
func (s *Supervisor) logSinkWorker(name string) func(context.Context) error {
	return func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}
}

// archiveWatcherWorker prunes regular files directly under archive/ whose
// modification time is older than a fixed seven-day retention, standing in
// for the original archive watcher subprocess. The retention is not
// configurable and subdirectories are not descended into.
func (s *Supervisor) archiveWatcherWorker(ctx context.Context) error {
	ticker := time.NewTicker(fullDirCheckInterval)
	defer ticker.Stop()
	archiveDir := filepath.Join(s.cfg.WorkDir, "archive")
	const retention = 7 * 24 * time.Hour
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pruneOldFiles(archiveDir, retention)
		}
	}
}

func pruneOldFiles(dir string, retention time.Duration) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-retention)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}

// afddWorker serves the status-metrics HTTP endpoint (the AFDD optional
// worker of §4.6 startup step 3).
func (s *Supervisor) afddWorker(ctx context.Context) error {
	addr := s.cfg.AFDDAddr
	if addr == "" {
		addr = ":4024"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", statusmetrics.Handler(s.store))
	srv := &http.Server{Addr: addr, Handler: mux}
	s.httpSrv = srv

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Supervisor) pacerFor(hostAlias string) *retrypacer.Pacer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pacers[hostAlias]; ok {
		return p
	}
	p := retrypacer.New()
	s.pacers[hostAlias] = p
	return p
}

func ensureSubtree(workDir string) error {
	dirs := []string{
		"fifo", "messages", "log", "archive", "etc",
		"files/outgoing", "files/store", "files/crc", "files/tmp", "files/time",
		"files/incoming/file_mask", "files/incoming/ls_data",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(workDir, d), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the main loop of §4.6 until ctx is cancelled. Once per
// cfg.RescanTime it ticks the heartbeat, checks the shutdown byte, rolls
// the daily counters on a new day, and runs back-pressure, per-host pause
// and queue reconciliation. Directory recounts and action-script rescans
// run on their own fullDirCheckInterval and actionDirCheckInterval
// tickers, and commands are applied as they arrive.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.RescanTime)
	defer ticker.Stop()

	fullDirTicker := time.NewTicker(fullDirCheckInterval)
	defer fullDirTicker.Stop()
	actionTicker := time.NewTicker(actionDirCheckInterval)
	defer actionTicker.Stop()

	var lastRollup time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd := <-s.cmdCh:
			next, shutdown := applyCommand(s.state, cmd)
			s.state = next
			if shutdown {
				return s.Shutdown(context.Background())
			}

		case <-fullDirTicker.C:
			s.recountDirectories()

		case <-actionTicker.C:
			s.rescanActionScripts()

		case <-ticker.C:
			if err := s.active.Tick(); err != nil {
				logx.Errorf(nil, "heartbeat tick failed: %v", err)
			}
			if s.active.ShutdownRequested() {
				return s.Shutdown(context.Background())
			}
			now := time.Now()
			if now.YearDay() != lastRollup.YearDay() || now.Year() != lastRollup.Year() {
				s.rollDailyCounters()
				lastRollup = now
			}
			s.checkBackPressure()
			s.checkHostPauseState(now)
			_ = s.store.Reconcile()
		}
	}
}

// recountDirectories re-stats every configured directory's files/bytes
// into its FRA record (§4.6's FULL_DIR_CHECK_INTERVAL sweep).
func (s *Supervisor) recountDirectories() {
	for _, job := range s.cfg.Directories {
		idx, ok := s.store.DirIndex(job.Alias)
		if !ok {
			continue
		}
		entries, err := os.ReadDir(job.LocalDir)
		if err != nil {
			continue
		}
		var files int64
		var bytes int64
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			files++
			bytes += info.Size()
		}
		_ = s.store.WithDirLock(idx, func(d *status.DirRecord) error {
			d.FilesInDir = files
			d.BytesInDir = bytes
			return nil
		})
	}
}

// rescanActionScripts re-derives each host's SuccessAction bit from
// whether its success-hook script exists and is executable (§4.6's
// ACTION_DIR_CHECK_INTERVAL sweep).
func (s *Supervisor) rescanActionScripts() {
	successDir := filepath.Join(s.cfg.WorkDir, "etc", "action", "target", "success")
	for i := 0; i < s.store.Hosts.Count(); i++ {
		idx := i
		_ = s.store.WithHostLock(idx, func(h *status.HostRecord) error {
			if h.Alias == "" {
				return nil
			}
			info, err := os.Stat(filepath.Join(successDir, h.Alias))
			executable := err == nil && info.Mode()&0o111 != 0
			if executable {
				h.Status |= status.SuccessAction
			} else {
				h.Status &^= status.SuccessAction
			}
			return nil
		})
	}
}

// rollDailyCounters is §4.6's once-a-day rollup: it shifts the system-log
// history ring by one entry and stores the current fork counter in its
// first entry. It resets no counter, and the receive and transfer history
// rings are left unchanged.
func (s *Supervisor) rollDailyCounters() {
	_ = s.store.WithGlobalLock(func(g *status.GlobalRecord) error {
		copy(g.SysLogHistory[1:], g.SysLogHistory[:len(g.SysLogHistory)-1])
		g.SysLogHistory[0] = int32(g.ForkCounter)
		return nil
	})
}

// Shutdown runs §4.6's graceful shutdown: stop workers, persist counters,
// detach the status store, and release the active marker.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.waitWorkers()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(maxShutdownWait):
		logx.Warnf(nil, "workers did not stop within %s", maxShutdownWait)
	}

	_ = s.store.WithGlobalLock(func(g *status.GlobalRecord) error {
		g.Hostname = ""
		return nil
	})
	if err := s.store.Close(); err != nil {
		logx.Errorf(nil, "closing status store: %v", err)
	}
	if err := s.dedup.Close(); err != nil {
		logx.Errorf(nil, "closing dedup store: %v", err)
	}
	if err := s.active.Release(); err != nil {
		logx.Errorf(nil, "releasing active marker: %v", err)
	}
	logx.Infof(nil, "shutdown complete")
	return nil
}

// RequestShutdown enqueues a SHUTDOWN command, the in-process analogue of
// writing the SHUTDOWN opcode to the supervisor's command FIFO.
func (s *Supervisor) RequestShutdown() {
	select {
	case s.cmdCh <- CmdShutdown:
	default:
	}
}
