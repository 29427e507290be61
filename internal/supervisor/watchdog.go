package supervisor

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/afdist/afd/internal/logx"
)

// notifyWatchdog speaks systemd's watchdog protocol when the daemon runs
// under a unit with WatchdogSec= set: it sends READY, then pings WATCHDOG=1
// on its own ticker at half the watchdog interval for as long as tick
// reports true, and sends STOPPING when ctx ends. It does not read the
// AFD_ACTIVE heartbeat of §4.2. It is a no-op outside systemd
// (NOTIFY_SOCKET unset).
func notifyWatchdog(ctx context.Context, tick func() bool) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logx.Warnf(nil, "sd_notify READY failed: %v", err)
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			return
		case <-ticker.C:
			if !tick() {
				return
			}
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logx.Warnf(nil, "sd_notify WATCHDOG failed: %v", err)
			}
		}
	}
}
