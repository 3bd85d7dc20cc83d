package twin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/looplab/fsm"
	"github.com/omnect/twin-agent/pkg/logging"
	"github.com/omnect/twin-agent/pkg/marker"
	"github.com/omnect/twin-agent/pkg/sigcontext"
	"github.com/pkg/errors"
)

const (
	// DefaultQueueCapacity is the number of reported property patches that
	// may wait for the loop before producers are paused.
	DefaultQueueCapacity = 100

	notificationCapacity = 100
	shutdownTimeout      = 10 * time.Second
)

var errNoResultSink = errors.New("method invocation without result sink")

// Options configure a Twin.
type Options struct {
	// Connector creates the hub client when Run starts. Required.
	Connector Connector
	// Metadata provides the update metadata reported after the first
	// authentication. Required.
	Metadata InitialReporter
	// Heartbeat is the supervisor's liveness contract, nil when there is
	// none.
	Heartbeat Heartbeat
	// Supervisor is told about readiness and shutdown, may be nil.
	Supervisor Supervisor
	// ModuleVersion is reported alongside the client's SDK version.
	ModuleVersion string
	// QueueCapacity bounds the reported property queue, DefaultQueueCapacity
	// when zero.
	QueueCapacity int
	// Features consume desired properties by top-level key.
	Features map[string]DesiredConsumer
	// Methods are direct methods in addition to the built-in ones.
	Methods map[string]MethodFunc
}

// Twin synchronizes the device twin. It is not safe to Run more than once.
type Twin struct {
	log        logging.Logger
	connector  Connector
	metadata   InitialReporter
	heartbeat  Heartbeat
	supervisor Supervisor
	version    string
	features   map[string]DesiredConsumer
	methods    map[string]MethodFunc
	queue      *ReportedQueue
	lifecycle  *fsm.FSM

	client            Client
	authenticatedOnce bool
}

// New creates a Twin.
func New(log logging.Logger, opts Options) (*Twin, error) {
	switch {
	case opts.Connector == nil:
		return nil, errors.New("connector must be provided")
	case opts.Metadata == nil:
		return nil, errors.New("update metadata must be provided")
	case opts.QueueCapacity < 0:
		return nil, errors.Errorf("invalid queue capacity %d", opts.QueueCapacity)
	case opts.Heartbeat != nil && opts.Heartbeat.Deadline()/2 <= 0:
		return nil, errors.Errorf("heartbeat deadline %s too short", opts.Heartbeat.Deadline())
	}
	capacity := opts.QueueCapacity
	if capacity == 0 {
		capacity = DefaultQueueCapacity
	}
	version := opts.ModuleVersion
	if version == "" {
		version = marker.ModuleVersion
	}

	methods := builtinMethods()
	for name, fn := range opts.Methods {
		if _, ok := methods[name]; ok {
			return nil, errors.Errorf("method %q is already registered", name)
		}
		methods[name] = fn
	}
	features := make(map[string]DesiredConsumer, len(opts.Features))
	for key, consumer := range opts.Features {
		if key == marker.VersionKey {
			return nil, errors.Errorf("desired property %q can't be consumed", key)
		}
		features[key] = consumer
	}

	t := &Twin{
		log:        log,
		connector:  opts.Connector,
		metadata:   opts.Metadata,
		heartbeat:  opts.Heartbeat,
		supervisor: opts.Supervisor,
		version:    version,
		features:   features,
		methods:    methods,
		queue:      NewReportedQueue(capacity),
	}
	t.lifecycle = t.newLifecycle()
	return t, nil
}

// Reporter is the producing end of the reported property queue.
func (t *Twin) Reporter() Reporter {
	return t.queue
}

// Run connects to the hub and handles events until a termination signal is
// received or ctx is done, which is a clean shutdown. Any other return is an
// unrecoverable error.
func (t *Twin) Run(ctx context.Context) error {
	sigctx, release := sigcontext.WithSignalCancel(ctx, sigcontext.TerminationSignals...)
	defer release()

	connectionStates := make(chan ConnectionState, notificationCapacity)
	desired := make(chan DesiredUpdate, notificationCapacity)
	methods := make(chan MethodInvocation, notificationCapacity)

	t.transition(ctx, eventConnect)
	client, err := t.connector.Connect(sigctx, Notifications{
		ConnectionState: connectionStates,
		Desired:         desired,
		Methods:         methods,
	})
	if err != nil {
		if sigctx.Err() != nil {
			// Terminated before a client existed, there is nothing to shut down.
			release()
			t.transition(ctx, eventShutdown)
			t.log.WithError(err).Info("terminated while connecting")
			t.notifySupervisor("stopping", t.supervisorStopping)
			t.transition(ctx, eventStop)
			return nil
		}
		t.transition(ctx, eventFail)
		return errors.WithMessage(err, "cannot create hub client")
	}
	t.client = client
	t.transition(ctx, eventRun)
	t.log.WithField("sdk", client.SDKVersion()).Info("hub client created")
	t.notifySupervisor("ready", t.supervisorReady)

	var heartbeat <-chan time.Time
	if t.heartbeat != nil {
		interval := t.heartbeat.Deadline() / 2
		t.log.WithField("interval", interval).Debug("triggering watchdog")
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		// Termination takes effect before any other ready event is handled.
		select {
		case <-sigctx.Done():
			return t.shutdown(ctx, release)
		default:
		}

		select {
		case <-heartbeat:
			eventsHandled.WithLabelValues(sourceHeartbeat).Inc()
			if err := t.heartbeat.Notify(); err != nil {
				return t.fail(ctx, errors.WithMessage(err, "cannot notify supervisor"))
			}

		case <-sigctx.Done():
			return t.shutdown(ctx, release)

		case state, ok := <-connectionStates:
			if !ok {
				return t.fail(ctx, errors.New("connection state channel closed"))
			}
			eventsHandled.WithLabelValues(sourceConnectionState).Inc()
			if err := t.handleConnectionState(sigctx, state); err != nil {
				if sigctx.Err() != nil {
					return t.shutdown(ctx, release)
				}
				return t.fail(ctx, errors.WithMessage(err, "connection state"))
			}

		case update, ok := <-desired:
			if !ok {
				return t.fail(ctx, errors.New("desired properties channel closed"))
			}
			eventsHandled.WithLabelValues(sourceDesired).Inc()
			if err := t.handleDesired(sigctx, update); err != nil {
				t.log.WithError(err).Error("twin update desired properties")
			}

		case invocation, ok := <-methods:
			if !ok {
				return t.fail(ctx, errors.New("direct method channel closed"))
			}
			eventsHandled.WithLabelValues(sourceMethod).Inc()
			if err := t.handleMethod(sigctx, invocation); err != nil {
				return t.fail(ctx, errors.WithMessage(err, "direct method"))
			}

		case patch := <-t.queue.patches:
			eventsHandled.WithLabelValues(sourceReported).Inc()
			if err := t.forward(patch); err != nil {
				return t.fail(ctx, err)
			}
		}
	}
}

// forward sends a patch to the hub client.
func (t *Twin) forward(patch json.RawMessage) error {
	if err := t.client.ReportProperties(patch); err != nil {
		return errors.WithMessage(err, "cannot report properties")
	}
	patchesReported.Inc()
	t.log.WithField("bytes", len(patch)).Debug("reported properties")
	return nil
}

// enqueue is used by the loop's own handlers to report. The loop is the queue's
// only consumer, so instead of waiting for room it makes room by forwarding
// the oldest patches itself.
func (t *Twin) enqueue(ctx context.Context, patch json.RawMessage) error {
	for {
		select {
		case t.queue.patches <- patch:
			return nil
		default:
		}

		select {
		case head := <-t.queue.patches:
			if err := t.forward(head); err != nil {
				return err
			}
		case t.queue.patches <- patch:
			return nil
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "reported property queue full")
		}
	}
}

func (t *Twin) shutdown(ctx context.Context, releaseSignals context.CancelFunc) error {
	releaseSignals()
	t.transition(ctx, eventShutdown)
	t.log.Info("shutting down")
	t.notifySupervisor("stopping", t.supervisorStopping)

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := t.client.Shutdown(sctx); err != nil {
		t.log.WithError(err).Warn("hub client shutdown")
	}

	t.transition(ctx, eventStop)
	return nil
}

// fail releases the client after an unrecoverable error and passes the error
// on.
func (t *Twin) fail(ctx context.Context, err error) error {
	t.transition(ctx, eventFail)

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := t.client.Shutdown(sctx); serr != nil {
		t.log.WithError(serr).Warn("hub client shutdown")
	}
	return err
}

func (t *Twin) supervisorReady() error {
	return t.supervisor.Ready()
}

func (t *Twin) supervisorStopping() error {
	return t.supervisor.Stopping()
}

func (t *Twin) notifySupervisor(what string, fn func() error) {
	if t.supervisor == nil {
		return
	}
	if err := fn(); err != nil {
		t.log.WithError(err).Warnf("cannot notify supervisor %s", what)
	}
}
