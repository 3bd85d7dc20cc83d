package twin

import (
	"context"
	"encoding/json"
	"time"
)

// Client is the connection to the hub. It is owned by the Twin and only used
// from its loop.
type Client interface {
	// ReportProperties merges the patch into the twin's reported properties.
	ReportProperties(patch json.RawMessage) error
	// SDKVersion describes the client implementation.
	SDKVersion() string
	// Shutdown disconnects from the hub. The client stops writing
	// notifications once it returns.
	Shutdown(ctx context.Context) error
}

// Notifications are the channels a Client delivers inbound events on. The
// Twin owns the channels and never closes them; clients must not close them
// either.
type Notifications struct {
	ConnectionState chan<- ConnectionState
	Desired         chan<- DesiredUpdate
	Methods         chan<- MethodInvocation
}

// Connector creates the Client when the loop starts.
type Connector interface {
	Connect(ctx context.Context, n Notifications) (Client, error)
}

// ConnectorFunc adapts a function to a Connector.
type ConnectorFunc func(ctx context.Context, n Notifications) (Client, error)

func (fn ConnectorFunc) Connect(ctx context.Context, n Notifications) (Client, error) {
	return fn(ctx, n)
}

// Heartbeat is a supervisor's liveness contract: Notify must be called before
// Deadline elapses.
type Heartbeat interface {
	Deadline() time.Duration
	Notify() error
}

// Supervisor is told about the agent's readiness and shutdown.
type Supervisor interface {
	Ready() error
	Stopping() error
}

// InitialReporter provides the documents reported once after the first
// successful authentication.
type InitialReporter interface {
	InitialReport() ([]json.RawMessage, error)
}
