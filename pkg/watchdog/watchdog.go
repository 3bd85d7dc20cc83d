// Package watchdog talks to the systemd service manager: readiness, shutdown
// and the watchdog keep-alive.
package watchdog

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/errors"
)

var (
	watchdogEnabled = daemon.SdWatchdogEnabled
	sdNotify        = daemon.SdNotify
)

// Manager notifies the service manager.
type Manager struct {
	deadline time.Duration
}

// Init reports the service manager's watchdog. The returned Manager is nil
// when no watchdog is configured for this process.
func Init() (*Manager, error) {
	deadline, err := watchdogEnabled(false)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read watchdog configuration")
	}
	if deadline == 0 {
		return nil, nil
	}
	return &Manager{deadline: deadline}, nil
}

// Deadline is the interval within which Notify has to be called.
func (m *Manager) Deadline() time.Duration {
	return m.deadline
}

// Notify resets the watchdog.
func (m *Manager) Notify() error {
	return notify(daemon.SdNotifyWatchdog)
}

// Notifier sends lifecycle notifications whether or not a watchdog is
// configured.
type Notifier struct{}

// Ready tells the service manager that startup finished.
func (Notifier) Ready() error {
	return notify(daemon.SdNotifyReady)
}

// Stopping tells the service manager that the agent shuts down.
func (Notifier) Stopping() error {
	return notify(daemon.SdNotifyStopping)
}

// notify is a no-op outside of a service with NOTIFY_SOCKET.
func notify(state string) error {
	if _, err := sdNotify(false, state); err != nil {
		return errors.Wrapf(err, "cannot notify %q", state)
	}
	return nil
}
