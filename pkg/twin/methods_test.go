package twin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/assert"
)

func invoke(t *testing.T, tw *Twin, name string) MethodResult {
	t.Helper()
	sink := NewResultSink(nil)
	assert.NilError(t, tw.handleMethod(context.Background(), MethodInvocation{
		Name:    name,
		Payload: json.RawMessage(`{}`),
		Result:  sink,
	}))
	select {
	case r := <-sink.Result():
		return r
	default:
		t.Fatal("no result written")
	}
	return MethodResult{}
}

func TestFactoryReset(t *testing.T) {
	tw, _ := handlerTwin(t, Options{})

	r := invoke(t, tw, "factory_reset")
	assert.NilError(t, r.Err)
	assert.Equal(t, string(r.Payload), `{}`)
}

func TestUnknownMethod(t *testing.T) {
	tw, _ := handlerTwin(t, Options{})

	r := invoke(t, tw, "reboot")
	uerr, ok := r.Err.(*UnknownMethodError)
	assert.Assert(t, ok, "unexpected error %v", r.Err)
	assert.Equal(t, uerr.Name, "reboot")
}

func TestRegisteredMethods(t *testing.T) {
	tw, _ := handlerTwin(t, Options{Methods: map[string]MethodFunc{
		"echo": func(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
			return payload, nil
		},
		"broken": func(context.Context, json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("broken")
		},
	}})

	r := invoke(t, tw, "echo")
	assert.NilError(t, r.Err)
	assert.Equal(t, string(r.Payload), `{}`)

	r = invoke(t, tw, "broken")
	assert.ErrorContains(t, r.Err, "broken")
}

func TestDuplicateMethod(t *testing.T) {
	_, err := New(nil, Options{
		Connector: newTestingConnector(),
		Metadata:  defaultMetadata(),
		Methods: map[string]MethodFunc{
			"factory_reset": func(context.Context, json.RawMessage) (json.RawMessage, error) { return nil, nil },
		},
	})
	assert.ErrorContains(t, err, "already registered")
}

func TestCallerGone(t *testing.T) {
	tw, _ := handlerTwin(t, Options{})
	gone := make(chan struct{})
	close(gone)

	sink := NewResultSink(gone)
	err := tw.handleMethod(context.Background(), MethodInvocation{Name: "factory_reset", Result: sink})
	assert.NilError(t, err)
	assert.Equal(t, sink.Send(MethodResult{}), ErrResultAlreadySent)
}

func TestMissingSink(t *testing.T) {
	tw, _ := handlerTwin(t, Options{})
	err := tw.handleMethod(context.Background(), MethodInvocation{Name: "factory_reset"})
	assert.Equal(t, err, errNoResultSink)
}

func TestSinkWritesOnce(t *testing.T) {
	sink := NewResultSink(nil)
	assert.NilError(t, sink.Send(MethodResult{Payload: json.RawMessage(`1`)}))
	assert.Equal(t, sink.Send(MethodResult{Payload: json.RawMessage(`2`)}), ErrResultAlreadySent)
	assert.Equal(t, string((<-sink.Result()).Payload), `1`)
}
