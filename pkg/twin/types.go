package twin

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// UnauthenticatedReason is the cause of a lost or refused connection.
type UnauthenticatedReason int

const (
	ReasonExpiredSasToken UnauthenticatedReason = iota
	ReasonDeviceDisabled
	ReasonBadCredential
	ReasonRetryExpired
	ReasonNoNetwork
	ReasonCommunicationError
	ReasonNoPingResponse
)

func (r UnauthenticatedReason) String() string {
	switch r {
	case ReasonExpiredSasToken:
		return "ExpiredSasToken"
	case ReasonDeviceDisabled:
		return "DeviceDisabled"
	case ReasonBadCredential:
		return "BadCredential"
	case ReasonRetryExpired:
		return "RetryExpired"
	case ReasonNoNetwork:
		return "NoNetwork"
	case ReasonCommunicationError:
		return "CommunicationError"
	case ReasonNoPingResponse:
		return "NoPingResponse"
	default:
		return fmt.Sprintf("UnauthenticatedReason(%d)", int(r))
	}
}

// ConnectionState is reported by the client whenever its authentication
// with the hub changes. Reason is only meaningful when not Authenticated.
type ConnectionState struct {
	Authenticated bool
	Reason        UnauthenticatedReason
}

// Authenticated is the state of an established connection.
func Authenticated() ConnectionState {
	return ConnectionState{Authenticated: true}
}

// Unauthenticated is the state of a lost or refused connection.
func Unauthenticated(reason UnauthenticatedReason) ConnectionState {
	return ConnectionState{Reason: reason}
}

func (s ConnectionState) String() string {
	if s.Authenticated {
		return "Authenticated"
	}
	return fmt.Sprintf("Unauthenticated(%s)", s.Reason)
}

// UnauthenticatedError reports a connection loss the agent can't recover
// from on its own.
type UnauthenticatedError struct {
	Reason UnauthenticatedReason
}

func (e *UnauthenticatedError) Error() string {
	return fmt.Sprintf("no connection, reason: %s", e.Reason)
}

// UpdateScope tells whether a desired update is a delta or a snapshot.
type UpdateScope int

const (
	// Partial updates carry only the changed top-level keys.
	Partial UpdateScope = iota
	// Complete updates carry the whole twin with the desired properties
	// nested under the "desired" key.
	Complete
)

func (s UpdateScope) String() string {
	switch s {
	case Partial:
		return "partial"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("UpdateScope(%d)", int(s))
	}
}

// DesiredUpdate is a desired property document received from the hub.
type DesiredUpdate struct {
	Scope   UpdateScope
	Payload json.RawMessage
}

// MethodInvocation is a direct method call awaiting exactly one result on
// its sink.
type MethodInvocation struct {
	Name    string
	Payload json.RawMessage
	Result  *ResultSink
}

// MethodResult is the outcome of a direct method. A nil Err is success, with
// an optional Payload.
type MethodResult struct {
	Payload json.RawMessage
	Err     error
}

// UnknownMethodError is the result of invoking a method the agent doesn't
// implement.
type UnknownMethodError struct {
	Name string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown method %q", e.Name)
}

var (
	// ErrResultAlreadySent is returned on every write after the first.
	ErrResultAlreadySent = errors.New("method result already sent")
	// ErrResultReceiverGone is returned when the caller stopped waiting for
	// the result.
	ErrResultReceiverGone = errors.New("method result receiver dropped")
)

// ResultSink carries the single result of a MethodInvocation back to the
// client that received the call.
type ResultSink struct {
	once   sync.Once
	result chan MethodResult
	gone   <-chan struct{}
}

// NewResultSink creates a sink. The client closes gone when it no longer
// waits for the result; gone may be nil.
func NewResultSink(gone <-chan struct{}) *ResultSink {
	return &ResultSink{
		result: make(chan MethodResult, 1),
		gone:   gone,
	}
}

// Send writes the result. Only the first write is delivered.
func (s *ResultSink) Send(r MethodResult) error {
	err := ErrResultAlreadySent
	s.once.Do(func() {
		select {
		case <-s.gone:
			err = ErrResultReceiverGone
			return
		default:
		}
		s.result <- r
		err = nil
	})
	return err
}

// Result is the receiving end of the sink.
func (s *ResultSink) Result() <-chan MethodResult {
	return s.result
}
