package twin

import (
	"context"

	"github.com/looplab/fsm"
)

// Lifecycle states of the Twin.
const (
	StateStarting     = "starting"
	StateConnecting   = "connecting"
	StateRunning      = "running"
	StateShuttingDown = "shutting_down"
	StateStopped      = "stopped"
)

const (
	eventConnect  = "connect"
	eventRun      = "run"
	eventShutdown = "shutdown"
	eventStop     = "stop"
	eventFail     = "fail"
)

func (t *Twin) newLifecycle() *fsm.FSM {
	return fsm.NewFSM(
		StateStarting,
		fsm.Events{
			{Name: eventConnect, Src: []string{StateStarting}, Dst: StateConnecting},
			{Name: eventRun, Src: []string{StateConnecting}, Dst: StateRunning},
			{Name: eventShutdown, Src: []string{StateConnecting, StateRunning}, Dst: StateShuttingDown},
			{Name: eventStop, Src: []string{StateShuttingDown}, Dst: StateStopped},
			{Name: eventFail, Src: []string{StateStarting, StateConnecting, StateRunning, StateShuttingDown}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				t.log.WithField("from", e.Src).Debugf("entered %s", e.Dst)
			},
		},
	)
}

// transition fires a lifecycle event. The transitions are fixed by Run, so a
// refused event is a programming error and only logged. The lifecycle also
// records shutdowns caused by ctx, so its cancellation is not passed on.
func (t *Twin) transition(ctx context.Context, event string) {
	if err := t.lifecycle.Event(context.WithoutCancel(ctx), event); err != nil {
		t.log.WithError(err).WithField("event", event).Error("invalid lifecycle transition")
	}
}

// State reports the Twin's lifecycle state.
func (t *Twin) State() string {
	return t.lifecycle.Current()
}
