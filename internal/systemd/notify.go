// Package systemd integrates the monitor daemon with systemd service
// supervision. Everything here is a no-op outside a systemd unit.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// NotifyReady tells systemd the daemon is up.
func NotifyReady(logger zerolog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd readiness")
		return
	}
	if sent {
		logger.Debug().Msg("Notified systemd readiness")
	}
}

// NotifyStopping tells systemd the daemon is shutting down.
func NotifyStopping(logger zerolog.Logger) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// RunWatchdog pings the systemd watchdog at half the configured interval
// until the context ends. Returns immediately when no watchdog is set.
func RunWatchdog(ctx context.Context, logger zerolog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	logger.Debug().Dur("interval", interval).Msg("Systemd watchdog enabled")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
