// Package systemd integrates with the service manager when the agent runs
// as a Type=notify unit. All calls are no-ops outside systemd.
package systemd

import "github.com/coreos/go-systemd/v22/daemon"

// NotifyReady signals that startup finished.
func NotifyReady() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

// NotifyStopping signals that shutdown began.
func NotifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
