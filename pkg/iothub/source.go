package iothub

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/omnect/twin-agent/pkg/config"
	"github.com/omnect/twin-agent/pkg/logging"
	"github.com/pkg/errors"
)

// SourceKind tells where the client's identity comes from.
type SourceKind int

const (
	// SourceConnectionString uses an explicitly configured connection string.
	SourceConnectionString SourceKind = iota
	// SourceEdgeEnvironment uses the variables and workload API of the edge
	// runtime.
	SourceEdgeEnvironment
	// SourceIdentityService uses the device's identity and key services.
	SourceIdentityService
)

func (k SourceKind) String() string {
	switch k {
	case SourceConnectionString:
		return "connection-string"
	case SourceEdgeEnvironment:
		return "edge-environment"
	case SourceIdentityService:
		return "identity-service"
	default:
		return "unknown"
	}
}

// Source is the selected identity source. Only the field matching Kind is
// set.
type Source struct {
	Kind             SourceKind
	ConnectionString ConnectionString
	Edge             EdgeEnvironment
	IdentityService  IdentityService
}

// SelectSource picks the identity source: an explicit connection string wins,
// then the edge runtime's environment, then the identity service.
func SelectSource(connectionString string, lookupEnv func(string) (string, bool), c config.IoTHub) (Source, error) {
	if connectionString != "" {
		cs, err := ParseConnectionString(connectionString)
		if err != nil {
			return Source{}, err
		}
		return Source{Kind: SourceConnectionString, ConnectionString: cs}, nil
	}

	edge, ok, err := edgeEnvironment(lookupEnv)
	if err != nil {
		return Source{}, err
	}
	if ok {
		return Source{Kind: SourceEdgeEnvironment, Edge: edge}, nil
	}

	return Source{Kind: SourceIdentityService, IdentityService: IdentityService{
		ClientType:      c.ClientType,
		IdentitydSocket: c.IdentitydSocket,
		KeydSocket:      c.KeydSocket,
	}}, nil
}

// Identity resolves the source. Local services are retried while they start
// up.
func (s Source) Identity(ctx context.Context, log logging.Logger) (Identity, error) {
	switch s.Kind {
	case SourceConnectionString:
		signer, err := NewKeySigner(s.ConnectionString.SharedAccessKey)
		if err != nil {
			return Identity{}, err
		}
		return Identity{
			HostName:        s.ConnectionString.HostName,
			GatewayHostName: s.ConnectionString.GatewayHostName,
			DeviceID:        s.ConnectionString.DeviceID,
			ModuleID:        s.ConnectionString.ModuleID,
			Signer:          signer,
		}, nil
	case SourceEdgeEnvironment:
		return retryIdentity(ctx, log, s.Edge.identity)
	case SourceIdentityService:
		return retryIdentity(ctx, log, s.IdentityService.identity)
	default:
		return Identity{}, errors.Errorf("unknown identity source %d", s.Kind)
	}
}

var identityRetryTime = 2 * time.Minute

func retryIdentity(ctx context.Context, log logging.Logger, fetch func(context.Context) (Identity, error)) (Identity, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = identityRetryTime

	var id Identity
	err := backoff.RetryNotify(func() error {
		var err error
		id, err = fetch(ctx)
		return err
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		log.WithError(err).WithField("retry", next).Warn("identity not available")
	})
	if err != nil {
		return Identity{}, errors.WithMessage(err, "cannot get identity")
	}
	return id, nil
}
