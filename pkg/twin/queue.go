package twin

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
)

// Reporter accepts reported property merge-patches. Report blocks while the
// queue is full; this is the agent's backpressure point and producers are
// expected to wait.
type Reporter interface {
	Report(ctx context.Context, patch json.RawMessage) error
}

var _ Reporter = (*ReportedQueue)(nil)

// ReportedQueue is the bounded FIFO of patches waiting to be sent. Any number
// of producers may Report, the Twin's loop is the only consumer.
type ReportedQueue struct {
	patches chan json.RawMessage
}

// NewReportedQueue creates a queue holding up to capacity patches.
func NewReportedQueue(capacity int) *ReportedQueue {
	return &ReportedQueue{patches: make(chan json.RawMessage, capacity)}
}

// Report enqueues the patch, waiting for room until ctx is done.
func (q *ReportedQueue) Report(ctx context.Context, patch json.RawMessage) error {
	if !json.Valid(patch) {
		return errors.New("reported property patch is not valid JSON")
	}
	select {
	case q.patches <- patch:
		return nil
	default:
	}

	queueBackpressure.Inc()
	select {
	case q.patches <- patch:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "reported property queue full")
	}
}

// Len is the number of patches waiting.
func (q *ReportedQueue) Len() int {
	return len(q.patches)
}

// NewPatch creates a merge-patch setting key to value.
func NewPatch(key string, value interface{}) (json.RawMessage, error) {
	patch, err := sjson.SetBytes([]byte("{}"), key, value)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot build patch for %q", key)
	}
	return patch, nil
}
