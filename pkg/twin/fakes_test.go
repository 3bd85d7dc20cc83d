package twin

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/omnect/twin-agent/pkg/internal/testoutput"
	"github.com/omnect/twin-agent/pkg/logging"
	"gotest.tools/assert"
)

const testTimeout = 5 * time.Second

type testingClient struct {
	mu        sync.Mutex
	patches   []json.RawMessage
	shutdowns int

	reported   chan json.RawMessage
	ReportFn   func(json.RawMessage) error
	ShutdownFn func(context.Context) error
}

func newTestingClient() *testingClient {
	return &testingClient{reported: make(chan json.RawMessage, 1000)}
}

func (c *testingClient) ReportProperties(patch json.RawMessage) error {
	if c.ReportFn != nil {
		if err := c.ReportFn(patch); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.patches = append(c.patches, patch)
	c.mu.Unlock()
	c.reported <- patch
	return nil
}

func (c *testingClient) SDKVersion() string {
	return "test-sdk/1.0"
}

func (c *testingClient) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.shutdowns++
	c.mu.Unlock()
	if c.ShutdownFn != nil {
		return c.ShutdownFn(ctx)
	}
	return nil
}

func (c *testingClient) Shutdowns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdowns
}

func (c *testingClient) Patches() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]json.RawMessage(nil), c.patches...)
}

// waitReported collects n forwarded patches.
func (c *testingClient) waitReported(t *testing.T, n int) []json.RawMessage {
	t.Helper()
	var got []json.RawMessage
	timeout := time.After(testTimeout)
	for len(got) < n {
		select {
		case p := <-c.reported:
			got = append(got, p)
		case <-timeout:
			t.Fatalf("got %d of %d reported patches", len(got), n)
		}
	}
	return got
}

// testingConnector hands the client and the loop's notification channels to
// the test.
type testingConnector struct {
	client        *testingClient
	notifications chan Notifications
	ConnectFn     func(context.Context, Notifications) error
}

func newTestingConnector() *testingConnector {
	return &testingConnector{
		client:        newTestingClient(),
		notifications: make(chan Notifications, 1),
	}
}

func (c *testingConnector) Connect(ctx context.Context, n Notifications) (Client, error) {
	if c.ConnectFn != nil {
		if err := c.ConnectFn(ctx, n); err != nil {
			return nil, err
		}
	}
	c.notifications <- n
	return c.client, nil
}

func (c *testingConnector) waitConnected(t *testing.T) Notifications {
	t.Helper()
	select {
	case n := <-c.notifications:
		return n
	case <-time.After(testTimeout):
		t.Fatal("loop did not connect")
	}
	return Notifications{}
}

type testingMetadata struct {
	documents []json.RawMessage
	err       error
}

func (m *testingMetadata) InitialReport() ([]json.RawMessage, error) {
	return m.documents, m.err
}

func defaultMetadata() *testingMetadata {
	return &testingMetadata{documents: []json.RawMessage{
		json.RawMessage(`{"deviceInformation":{"__t":"c"}}`),
		json.RawMessage(`{"deviceUpdate":{"__t":"c"}}`),
	}}
}

type testingHeartbeat struct {
	deadline time.Duration
	notified chan struct{}
	NotifyFn func() error
}

func (h *testingHeartbeat) Deadline() time.Duration {
	return h.deadline
}

func (h *testingHeartbeat) Notify() error {
	if h.NotifyFn != nil {
		if err := h.NotifyFn(); err != nil {
			return err
		}
	}
	select {
	case h.notified <- struct{}{}:
	default:
	}
	return nil
}

type testingSupervisor struct {
	mu    sync.Mutex
	calls []string
}

func (s *testingSupervisor) Ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "ready")
	return nil
}

func (s *testingSupervisor) Stopping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "stopping")
	return nil
}

type runResult struct {
	err error
}

func testTwin(t *testing.T, opts Options) (*Twin, *testingConnector) {
	t.Helper()
	connector := newTestingConnector()
	if opts.Connector == nil {
		opts.Connector = connector
	}
	if opts.Metadata == nil {
		opts.Metadata = defaultMetadata()
	}
	if opts.ModuleVersion == "" {
		opts.ModuleVersion = "1.2.3"
	}
	tw, err := New(testoutput.Logger(t, logging.New("twin")), opts)
	assert.NilError(t, err)
	return tw, connector
}

// handlerTwin is a Twin with a client attached, for calling handlers
// directly without running the loop.
func handlerTwin(t *testing.T, opts Options) (*Twin, *testingClient) {
	t.Helper()
	tw, connector := testTwin(t, opts)
	tw.client = connector.client
	return tw, connector.client
}

func startTwin(t *testing.T, tw *Twin) (context.CancelFunc, <-chan runResult) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan runResult, 1)
	go func() {
		done <- runResult{err: tw.Run(ctx)}
	}()
	t.Cleanup(cancel)
	return cancel, done
}

func waitStopped(t *testing.T, done <-chan runResult) error {
	t.Helper()
	select {
	case r := <-done:
		return r.err
	case <-time.After(testTimeout):
		t.Fatal("loop did not stop")
	}
	return nil
}

// queued drains the reported property queue without running the loop.
func queued(tw *Twin) []string {
	var patches []string
	for {
		select {
		case p := <-tw.queue.patches:
			patches = append(patches, string(p))
		default:
			return patches
		}
	}
}
