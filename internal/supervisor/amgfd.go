package supervisor

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/afdist/afd/internal/afderr"
	"github.com/afdist/afd/internal/handling"
	"github.com/afdist/afd/internal/logx"
	"github.com/afdist/afd/internal/retrieve"
	"github.com/afdist/afd/internal/retrypacer"
	"github.com/afdist/afd/internal/status"
	"github.com/afdist/afd/internal/transfer"
)

// DirectoryJob is one configured source directory: where AMG looks for
// files (locally, or via an HTTP listing) and which host FD forwards the
// resulting batch to.
type DirectoryJob struct {
	Alias      string
	LocalDir   string
	RemoteURL  string // empty: files already arrive in LocalDir without a listing fetch
	HostAlias  string
	Masks      []retrieve.Mask
	Options    []handling.Option
	RescanTime time.Duration
}

// HostConfig binds a host alias to the transport FD uses to reach it.
type HostConfig struct {
	Alias     string
	Transport transfer.Transport
}

// batchJob is one AMG-to-FD handoff: a ready-to-send batch plus the
// destination host that owns it.
type batchJob struct {
	dirAlias  string
	hostAlias string
	dir       string
	files     []string
}

// amgWorker drives the retrieval planner (for directories with a
// RemoteURL) or a plain directory scan (for drop-box directories),
// applies the handling pipeline, and forwards the resulting batch to FD.
func (s *Supervisor) amgWorker(ctx context.Context) error {
	tickers := make([]*time.Ticker, len(s.cfg.Directories))
	for i, job := range s.cfg.Directories {
		interval := job.RescanTime
		if interval <= 0 {
			interval = s.afdCfg.AMGDirRescanTime
		}
		tickers[i] = time.NewTicker(interval)
	}
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		fired := false
		for i, job := range s.cfg.Directories {
			select {
			case <-ctx.Done():
				return nil
			case <-tickers[i].C:
				fired = true
				s.mu.Lock()
				stopped := s.amgStopped
				s.mu.Unlock()
				if stopped {
					continue
				}
				if err := s.runOneDirectoryCycle(ctx, job); err != nil {
					logx.Errorf(job.Alias, "retrieval cycle failed: %v", err)
				}
			default:
			}
		}
		if !fired {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
}

func (s *Supervisor) runOneDirectoryCycle(ctx context.Context, job DirectoryJob) error {
	if job.RemoteURL != "" {
		if err := s.retrieveRemote(ctx, job); err != nil {
			return err
		}
	}

	batch := &handling.Batch{Dir: job.LocalDir}
	entries, err := os.ReadDir(job.LocalDir)
	if err != nil {
		return afderr.New(afderr.Filesystem, job.LocalDir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		batch.FilesToSend = append(batch.FilesToSend, e.Name())
	}
	if len(batch.FilesToSend) == 0 {
		return nil
	}

	if err := handling.Run(batch, job.Options, s.handlingDeps()); err != nil {
		return err
	}
	if len(batch.FilesToSend) == 0 {
		return nil
	}

	select {
	case s.batches <- batchJob{dirAlias: job.Alias, hostAlias: job.HostAlias, dir: batch.Dir, files: batch.FilesToSend}:
	case <-ctx.Done():
	}
	return nil
}

// retrieveRemote runs the HTTP listing path of §4.4: fetch, parse, plan,
// and download every newly-eligible entry into job.LocalDir.
func (s *Supervisor) retrieveRemote(ctx context.Context, job DirectoryJob) error {
	list, err := retrieve.OpenList(s.cfg.WorkDir, job.Alias, 64)
	if err != nil {
		return err
	}
	defer list.Close()

	body, err := retrieve.FetchListing(ctx, http.DefaultClient, job.RemoteURL)
	if err != nil {
		return err
	}
	rawEntries, err := retrieve.ParseListing(body)
	if err != nil {
		return err
	}

	caps := retrieve.Caps{MaxCopiedFiles: s.afdCfg.MaxCopiedFiles}
	params := retrieve.Params{
		AcceptDotFiles: false,
		Masks:          job.Masks,
		Now:            time.Now(),
	}
	plan, err := retrieve.PlanCycle(list, rawEntries, caps, params)
	if err != nil {
		return err
	}
	if plan.MoreFilesInList {
		logx.Infof(job.Alias, "more files remain in list than this cycle's cap allows")
	}

	sort.Slice(plan.ToFetch, func(i, j int) bool { return plan.ToFetch[i].Name < plan.ToFetch[j].Name })
	for _, e := range plan.ToFetch {
		if err := s.downloadOne(ctx, job, e); err != nil {
			logx.Errorf(job.Alias, "download of %s failed: %v", e.Name, err)
		}
	}
	return nil
}

func (s *Supervisor) downloadOne(ctx context.Context, job DirectoryJob, e retrieve.ListEntry) error {
	url := job.RemoteURL + "/" + e.Name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return afderr.New(afderr.Configuration, url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return afderr.New(afderr.TransientNetwork, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return afderr.Newf(afderr.PermanentNetwork, url, "unexpected status %d", resp.StatusCode)
	}

	dest := filepath.Join(job.LocalDir, e.Name)
	f, err := os.Create(dest)
	if err != nil {
		return afderr.New(afderr.Filesystem, dest, err)
	}
	defer f.Close()
	if _, err := f.ReadFrom(resp.Body); err != nil {
		return afderr.New(afderr.Filesystem, dest, err)
	}
	return nil
}

func (s *Supervisor) handlingDeps() handling.Deps {
	return handling.Deps{
		RenameRules: s.cfg.RenameRules,
		Dedup:       s.dedup,
		SequenceNext: func(rule string) int {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.sequences[rule]++
			return s.sequences[rule]
		},
	}
}

// fdWorker drains batches AMG hands off and forwards each file to its
// destination host's transport, recording each attempt's outcome on the
// host's pacer and in the host's FSA counters (§3.1). A failed file is
// logged and left in its directory; it is not retried within the batch,
// and the pacer's Wait is not called.
func (s *Supervisor) fdWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-s.batches:
			s.sendBatch(ctx, job)
		}
	}
}

func (s *Supervisor) sendBatch(ctx context.Context, job batchJob) {
	transport, ok := s.hosts[job.hostAlias]
	if !ok {
		logx.Errorf(job.hostAlias, "no transport configured for host")
		return
	}
	pacer := s.pacerFor(job.hostAlias)

	for _, name := range job.files {
		path := filepath.Join(job.dir, name)
		if err := s.sendOneFile(ctx, transport, pacer, job.hostAlias, path, name); err != nil {
			logx.Errorf(job.hostAlias, "send %s failed: %v", name, err)
		}
	}
}

func (s *Supervisor) sendOneFile(ctx context.Context, t transfer.Transport, pacer *retrypacer.Pacer, hostAlias, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return afderr.New(afderr.Filesystem, path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return afderr.New(afderr.Filesystem, path, err)
	}

	n, sendErr := t.Send(ctx, name, f, fi.Size())
	idx, ok := s.store.HostIndex(hostAlias)
	if !ok {
		return sendErr
	}
	_ = s.store.WithHostLock(idx, func(h *status.HostRecord) error {
		if sendErr != nil {
			h.ErrorCounter++
			return nil
		}
		h.ErrorCounter = 0
		h.TotalFileCounter++
		h.TotalFileSize += n
		h.LastConnection = time.Now().Unix()
		return nil
	})
	if pacer != nil {
		if sendErr == nil {
			pacer.Success()
		} else {
			pacer.Fail()
		}
	}
	if sendErr == nil {
		_ = os.Remove(path)
	}
	return sendErr
}
