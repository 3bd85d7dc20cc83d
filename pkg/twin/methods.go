package twin

import (
	"context"
	"encoding/json"

	"github.com/omnect/twin-agent/pkg/internal/logfields"
	"github.com/omnect/twin-agent/pkg/marker"
)

// MethodFunc implements a direct method. The returned payload is optional on
// success.
type MethodFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

func builtinMethods() map[string]MethodFunc {
	return map[string]MethodFunc{
		marker.MethodFactoryReset: factoryReset,
	}
}

func factoryReset(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

// handleMethod writes exactly one result per invocation. Only a missing sink
// is an error, a caller that stopped waiting is logged.
func (t *Twin) handleMethod(ctx context.Context, invocation MethodInvocation) error {
	if invocation.Result == nil {
		return errNoResultSink
	}
	log := t.log.WithFields(logfields.Method(invocation.Name))

	var (
		result MethodResult
		label  = invocation.Name
	)
	fn, ok := t.methods[invocation.Name]
	if ok {
		result.Payload, result.Err = fn(ctx, invocation.Payload)
	} else {
		label = "unknown"
		result.Err = &UnknownMethodError{Name: invocation.Name}
	}

	outcome := "success"
	if result.Err != nil {
		outcome = "failure"
		log.WithError(result.Err).Warn("direct method failed")
	} else {
		log.Info("direct method succeeded")
	}
	methodInvocations.WithLabelValues(label, outcome).Inc()

	if err := invocation.Result.Send(result); err != nil {
		log.WithError(err).Warn("cannot send direct method result")
	}
	return nil
}
