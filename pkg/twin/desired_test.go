package twin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"gotest.tools/assert"
)

type desiredCall struct {
	Scope  UpdateScope
	Exists bool
	Raw    string
}

type testingConsumer struct {
	calls []desiredCall
	fn    func(gjson.Result) error
}

func (c *testingConsumer) UpdateDesired(_ context.Context, scope UpdateScope, value gjson.Result) error {
	c.calls = append(c.calls, desiredCall{Scope: scope, Exists: value.Exists(), Raw: value.Raw})
	if c.fn != nil {
		return c.fn(value)
	}
	return nil
}

func desiredTwin(t *testing.T) (*Twin, *testingConsumer, *testingConsumer) {
	ssh, wifi := &testingConsumer{}, &testingConsumer{}
	tw, _ := handlerTwin(t, Options{Features: map[string]DesiredConsumer{
		"ssh":  ssh,
		"wifi": wifi,
	}})
	return tw, ssh, wifi
}

func TestPartialUnknownKeys(t *testing.T) {
	tw, ssh, wifi := desiredTwin(t)

	err := tw.handleDesired(context.Background(), DesiredUpdate{
		Scope:   Partial,
		Payload: json.RawMessage(`{"other":{"x":1},"$version":4}`),
	})
	assert.NilError(t, err)
	assert.Equal(t, len(ssh.calls), 0)
	assert.Equal(t, len(wifi.calls), 0)
	assert.Equal(t, len(queued(tw)), 0)
}

func TestPartialKnownKey(t *testing.T) {
	tw, ssh, wifi := desiredTwin(t)

	err := tw.handleDesired(context.Background(), DesiredUpdate{
		Scope:   Partial,
		Payload: json.RawMessage(`{"ssh":{"enabled":true},"$version":5}`),
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, ssh.calls, []desiredCall{{Scope: Partial, Exists: true, Raw: `{"enabled":true}`}})
	assert.Equal(t, len(wifi.calls), 0)
}

func TestCompleteWithoutRoot(t *testing.T) {
	tw, ssh, _ := desiredTwin(t)

	err := tw.handleDesired(context.Background(), DesiredUpdate{
		Scope:   Complete,
		Payload: json.RawMessage(`{"reported":{"ssh":{}}}`),
	})
	assert.ErrorContains(t, err, `without "desired"`)
	assert.Equal(t, len(ssh.calls), 0)
}

func TestCompleteRoutesEveryKey(t *testing.T) {
	tw, ssh, wifi := desiredTwin(t)

	err := tw.handleDesired(context.Background(), DesiredUpdate{
		Scope:   Complete,
		Payload: json.RawMessage(`{"desired":{"wifi":{"ssid":"lab"},"$version":7},"reported":{}}`),
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, wifi.calls, []desiredCall{{Scope: Complete, Exists: true, Raw: `{"ssid":"lab"}`}})
	assert.DeepEqual(t, ssh.calls, []desiredCall{{Scope: Complete}})
}

func TestDesiredMalformed(t *testing.T) {
	tw, _, _ := desiredTwin(t)

	for name, payload := range map[string]string{
		"invalid": `{"ssh":`,
		"array":   `[1,2]`,
	} {
		t.Run(name, func(t *testing.T) {
			err := tw.handleDesired(context.Background(), DesiredUpdate{Scope: Partial, Payload: json.RawMessage(payload)})
			assert.Assert(t, err != nil)
		})
	}

	err := tw.handleDesired(context.Background(), DesiredUpdate{
		Scope:   Complete,
		Payload: json.RawMessage(`{"desired":"nope"}`),
	})
	assert.ErrorContains(t, err, "not an object")
}

func TestDesiredConsumerError(t *testing.T) {
	tw, ssh, wifi := desiredTwin(t)
	ssh.fn = func(gjson.Result) error { return errors.New("bad key file") }

	err := tw.handleDesired(context.Background(), DesiredUpdate{
		Scope:   Partial,
		Payload: json.RawMessage(`{"ssh":{},"wifi":{}}`),
	})
	assert.ErrorContains(t, err, `desired property "ssh": bad key file`)
	assert.Equal(t, len(wifi.calls), 0, "routing stops at the first failure")
}

func TestVersionKeyNotConsumable(t *testing.T) {
	_, err := New(nil, Options{
		Connector: newTestingConnector(),
		Metadata:  defaultMetadata(),
		Features:  map[string]DesiredConsumer{"$version": &testingConsumer{}},
	})
	assert.ErrorContains(t, err, "$version")
}
