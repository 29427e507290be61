package supervisor

import (
	"os"
	"time"

	"github.com/afdist/afd/internal/logx"
	"github.com/afdist/afd/internal/status"
)

// Back-pressure and danger-queue thresholds (§4.6). These stand in for the
// deployment's LINK_MAX/RESERVED_DIRS filesystem limits; they are small
// enough to exercise the AMG stop/start hysteresis in a directory that
// isn't actually near a real link-count ceiling.
const (
	defaultLinkMax          = 32000
	defaultStopAMGThreshold = 100
	defaultStartAMGThreshold = 50
	defaultReservedDirs     = 7
)

// checkBackPressure stats the outgoing spool directory and, per §4.6's
// back-pressure loop, toggles s.amgStopped (which amgWorker checks before
// each directory cycle) and queues STOP_AMG/START_AMG on the command channel.
func (s *Supervisor) checkBackPressure() {
	fi, err := os.Stat(s.outgoingDir())
	if err != nil {
		return // directory transiently missing: nothing to react to this tick
	}
	linkCount := int(linkCountOf(fi))

	stopCeiling := defaultLinkMax - defaultStopAMGThreshold - defaultReservedDirs
	startFloor := defaultLinkMax - defaultStartAMGThreshold

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case linkCount > stopCeiling && !s.amgStopped:
		s.amgStopped = true
		logx.Warnf(nil, "outgoing directory link count %d exceeds stop threshold %d, pausing AMG", linkCount, stopCeiling)
		select {
		case s.cmdCh <- CmdStopAMG:
		default:
		}
	case linkCount < startFloor && s.amgStopped:
		s.amgStopped = false
		logx.Infof(nil, "outgoing directory link count %d below start threshold %d, resuming AMG", linkCount, startFloor)
		select {
		case s.cmdCh <- CmdStartAMG:
		default:
		}
	}
}

// checkHostPauseState runs the per-host pause loop of §4.6 against every
// host in the status store, under that host's exclusive record lock.
func (s *Supervisor) checkHostPauseState(now time.Time) {
	for i := 0; i < s.store.Hosts.Count(); i++ {
		idx := i
		_ = s.store.WithHostLock(idx, func(h *status.HostRecord) error {
			if h.Alias == "" {
				return nil
			}
			applyHostPauseTransitions(h, now)
			return nil
		})
	}
}

// applyHostPauseTransitions mutates h in place per the five bullet rules
// of §4.6's per-host pause loop.
func applyHostPauseTransitions(h *status.HostRecord, now time.Time) {
	switch {
	case h.ErrorCounter >= h.MaxErrors && h.Status&status.AutoPauseQueue == 0:
		h.Status |= status.AutoPauseQueue
		logx.Errorf(h.Alias, "error_counter %d reached max_errors %d, auto-pausing queue", h.ErrorCounter, h.MaxErrors)
	case h.ErrorCounter < h.MaxErrors && h.Status&status.AutoPauseQueue != 0:
		h.Status &^= status.AutoPauseQueue
		h.Status &^= (status.ErrorOffline | status.ErrorOfflineT | status.ErrorAcknowledged | status.ErrorAcknowledgedT | status.ErrorQueueSet | status.PendingErrors)
		logx.Infof(h.Alias, "error_counter %d below max_errors %d, clearing auto-pause", h.ErrorCounter, h.MaxErrors)
	}

	if h.WarnTime > 0 && now.Unix()-h.LastConnection >= h.WarnTime {
		if h.Status&status.WarnTimeReached == 0 {
			h.Status |= status.WarnTimeReached
			logx.Warnf(h.Alias, "no connection for %ds, warn_time %d reached", now.Unix()-h.LastConnection, h.WarnTime)
		}
	} else if h.Status&status.WarnTimeReached != 0 {
		h.Status &^= status.WarnTimeReached
		logx.Infof(h.Alias, "connection resumed, clearing warn_time_reached")
	}

	dangerFiles := int64(h.MaxErrors) * dangerFilesMultiplier
	linkMax := int64(defaultLinkMax)
	switch {
	case int64(h.JobsQueued) >= linkMax/2 && h.Status&status.DangerPauseQueue == 0 && h.TotalFileCounter > dangerFiles:
		h.Status |= status.DangerPauseQueue
		logx.Warnf(h.Alias, "jobs_queued %d and total_file_counter %d crossed danger threshold", h.JobsQueued, h.TotalFileCounter)
	case int64(h.JobsQueued) < linkMax/4 && h.Status&status.DangerPauseQueue != 0 && h.TotalFileCounter < dangerFiles/2:
		h.Status &^= status.DangerPauseQueue
		logx.Infof(h.Alias, "jobs_queued and total_file_counter back under hysteresis floor, clearing danger pause")
	}
}

// dangerFilesMultiplier stands in for the deployment's configured
// danger_no_of_files, scaled off max_errors since no such per-host field
// is modeled separately in this port of §3.1's host record.
const dangerFilesMultiplier = 1000

func (s *Supervisor) outgoingDir() string {
	return s.cfg.WorkDir + "/files/outgoing"
}
