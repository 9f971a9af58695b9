// Package systemd reports service lifecycle state to the service
// manager when running under systemd. Outside systemd every call is a
// no-op.
package systemd

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady signals that startup has finished.
func NotifyReady() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("sd_notify ready: %w", err)
	}
	return nil
}

// NotifyStopping signals that shutdown has begun.
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("sd_notify stopping: %w", err)
	}
	return nil
}

// NotifyStatus publishes a free-form status line.
func NotifyStatus(status string) error {
	if _, err := daemon.SdNotify(false, "STATUS="+status); err != nil {
		return fmt.Errorf("sd_notify status: %w", err)
	}
	return nil
}
