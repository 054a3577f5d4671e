// Package systemd reports service state to the systemd supervisor through
// sd_notify. Every call is a no-op when the process was not started by a
// Type=notify unit.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd that startup finished. It reports whether the
// notification was delivered.
func Ready() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

// Reloading tells systemd that a config reload began. Call Ready when done.
func Reloading() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReloading) }

// Stopping tells systemd that shutdown began.
func Stopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by "systemctl status".
func Status(s string) (bool, error) { return daemon.SdNotify(false, "STATUS="+s) }

// WatchdogInterval returns how often the watchdog must be pinged, or 0 when
// the unit has no WatchdogSec.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// Watchdog pings systemd at half the configured interval while healthy
// returns true. It returns when ctx is done; with no watchdog configured it
// returns immediately.
func Watchdog(ctx context.Context, healthy func() bool) error {
	interval := WatchdogInterval()
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				continue
			}
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}

// ReportStatus sets the status line to status() now and then every interval,
// skipping lines that did not change. It returns when ctx is done, or at once
// when no notify socket is configured.
func ReportStatus(ctx context.Context, every time.Duration, status func() string) error {
	last := status()
	sent, err := Status(last)
	if err != nil || !sent {
		return err
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			line := status()
			if line == last {
				continue
			}
			if _, err := Status(line); err != nil {
				return err
			}
			last = line
		}
	}
}
