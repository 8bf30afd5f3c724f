// Package systemd speaks the sd_notify protocol for Type=notify units.
// Every call is a no-op outside systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "woonbot/pkg/logx"
)

// Notify sends a raw state string. sent is false when not under systemd.
func Notify(state string) (sent bool, err error) {
	return daemon.SdNotify(false, state)
}

func Ready() (bool, error) { return Notify(daemon.SdNotifyReady) }

func Stopping() (bool, error) { return Notify(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(text string) (bool, error) {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\n", " ")
	return Notify("STATUS=" + text)
}

// Watchdog pings the service manager at half the configured WatchdogSec
// until ctx is done. It returns at once when the watchdog is off.
func Watchdog(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	tick := interval / 2
	log.Debug("systemd watchdog enabled", logx.Duration("interval", interval))
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := Notify(daemon.SdNotifyWatchdog); err != nil {
				log.Warn("systemd watchdog ping failed", logx.Err(err))
			}
		}
	}
}
