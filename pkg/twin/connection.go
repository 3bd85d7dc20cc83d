package twin

import (
	"context"

	"github.com/omnect/twin-agent/pkg/marker"
	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
)

func (t *Twin) handleConnectionState(ctx context.Context, state ConnectionState) error {
	log := t.log.WithField("state", state.String())

	if !state.Authenticated {
		authenticated.Set(0)
		if state.Reason == ReasonExpiredSasToken {
			log.Info("sas token expired, waiting for the client to reauthenticate")
			return nil
		}
		return &UnauthenticatedError{Reason: state.Reason}
	}

	authenticated.Set(1)
	log.Info("connection established")
	if t.authenticatedOnce {
		return nil
	}
	t.authenticatedOnce = true

	identity, err := t.identityPatch()
	if err != nil {
		return err
	}
	if err := t.enqueue(ctx, identity); err != nil {
		return err
	}

	documents, err := t.metadata.InitialReport()
	if err != nil {
		return errors.WithMessage(err, "cannot build initial report")
	}
	for _, doc := range documents {
		if err := t.enqueue(ctx, doc); err != nil {
			return err
		}
	}
	log.WithField("patches", len(documents)+1).Debug("queued initial report")
	return nil
}

// identityPatch announces the agent and client versions.
func (t *Twin) identityPatch() ([]byte, error) {
	patch, err := sjson.SetBytes([]byte("{}"), marker.ModuleVersionKey, t.version)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build identity patch")
	}
	patch, err = sjson.SetBytes(patch, marker.SDKVersionKey, t.client.SDKVersion())
	if err != nil {
		return nil, errors.Wrap(err, "cannot build identity patch")
	}
	return patch, nil
}
