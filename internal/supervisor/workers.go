package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/afdist/afd/internal/afderr"
	"github.com/afdist/afd/internal/logx"
	"github.com/afdist/afd/internal/status"
)

// workerSpec describes one managed subprocess (in this implementation, one
// managed goroutine) — its process-table slot, criticality class, and the
// function that performs its work until ctx is cancelled or it returns.
type workerSpec struct {
	slot     int
	name     string
	critical bool // restarted unconditionally per §4.6; non-critical workers are just marked OFF
	run      func(ctx context.Context) error
}

// exitClass mirrors the exit-code taxonomy of §4.6/§6: 0 ordinary, 2 a
// SIGHUP-style restart request, 3 shared memory gone (also a restart), and
// anything else (including a panic-turned-error) counts as "died".
type exitClass int

const (
	exitOrdinary exitClass = iota
	exitRestartRequested
	exitSharedMemoryGone
	exitDied
)

// ErrRestartRequested is a worker's way of asking to be restarted cleanly,
// the goroutine equivalent of a SIGHUP-driven restart (§4.6 exit code 2).
var ErrRestartRequested = errors.New("worker requested restart")

func classify(err error) exitClass {
	switch {
	case err == nil:
		return exitOrdinary
	case errors.Is(err, ErrRestartRequested):
		return exitRestartRequested
	case afderr.KindOf(err) == afderr.SharedMemoryStale:
		return exitSharedMemoryGone
	default:
		return exitDied
	}
}

var goroutinePIDs int32 // synthetic PIDs for the process table, since workers here are goroutines, not forked children

func nextSyntheticPID() int32 {
	return atomic.AddInt32(&goroutinePIDs, 1)
}

// runWorker supervises one spec for the supervisor's lifetime: it runs
// spec.run in a loop, recording PID/process-table state before each
// attempt and restarting per the criticality policy of §4.6 after each
// exit, until ctx is done.
func (s *Supervisor) runWorker(ctx context.Context, spec workerSpec) {
	defer s.workerWG.Done()
	backoff := 200 * time.Millisecond
	for {
		if ctx.Err() != nil {
			s.setProcState(spec.slot, status.ProcOff)
			return
		}

		pid := nextSyntheticPID()
		if s.active != nil {
			_ = s.active.RecordPID(spec.slot, pid, spec.name)
		}
		s.setProcState(spec.slot, status.ProcOn)

		err := spec.run(ctx)
		class := classify(err)

		if ctx.Err() != nil {
			s.setProcState(spec.slot, status.ProcOff)
			return
		}

		switch class {
		case exitOrdinary:
			if !spec.critical {
				s.setProcState(spec.slot, status.ProcOff)
				return
			}
		case exitRestartRequested, exitSharedMemoryGone:
			// fall through to restart below
		case exitDied:
			logx.Errorf(spec.name, "worker died: %v", err)
			if !spec.critical {
				s.setProcState(spec.slot, status.ProcOff)
				return
			}
		}

		logx.Infof(spec.name, "restarting worker")
		select {
		case <-ctx.Done():
			s.setProcState(spec.slot, status.ProcOff)
			return
		case <-time.After(backoff):
		}
	}
}

func (s *Supervisor) setProcState(slot int, state status.ProcState) {
	if s.store == nil {
		return
	}
	_ = s.store.WithGlobalLock(func(g *status.GlobalRecord) error {
		if slot < 0 || slot >= status.MaxProcSlots {
			return nil
		}
		g.ProcStates[slot] = state
		return nil
	})
}

// startWorkers launches every spec in specs, in the fixed order they are
// given (§4.6 startup step 3: log sinks, then archive watcher, then I/O
// loggers, then the main movers, then optional AFDD/ALDAD).
func (s *Supervisor) startWorkers(ctx context.Context, specs []workerSpec) {
	for _, spec := range specs {
		spec := spec
		s.workerWG.Add(1)
		go s.runWorker(ctx, spec)
	}
}

// waitWorkers blocks until every launched worker goroutine has returned.
func (s *Supervisor) waitWorkers() {
	s.workerWG.Wait()
}
