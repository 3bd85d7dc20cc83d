package twin

import (
	"context"
	"sort"

	"github.com/omnect/twin-agent/pkg/internal/logfields"
	"github.com/omnect/twin-agent/pkg/marker"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// DesiredConsumer applies the desired properties of one top-level key. For
// Complete updates a key missing from the document is passed as a result that
// doesn't exist, so the consumer can reset to its defaults.
type DesiredConsumer interface {
	UpdateDesired(ctx context.Context, scope UpdateScope, value gjson.Result) error
}

// DesiredConsumerFunc adapts a function to a DesiredConsumer.
type DesiredConsumerFunc func(ctx context.Context, scope UpdateScope, value gjson.Result) error

func (fn DesiredConsumerFunc) UpdateDesired(ctx context.Context, scope UpdateScope, value gjson.Result) error {
	return fn(ctx, scope, value)
}

func (t *Twin) handleDesired(ctx context.Context, update DesiredUpdate) error {
	log := t.log.WithFields(logfields.Desired(update.Scope.String(), len(update.Payload)))
	log.Debug("desired properties")

	if !gjson.ValidBytes(update.Payload) {
		return errors.New("desired properties are not valid JSON")
	}
	doc := gjson.ParseBytes(update.Payload)
	if !doc.IsObject() {
		return errors.Errorf("desired properties are a %s, not an object", doc.Type)
	}

	var properties map[string]gjson.Result
	switch update.Scope {
	case Partial:
		properties = doc.Map()
	case Complete:
		root := doc.Get(marker.DesiredRootKey)
		if !root.Exists() {
			return errors.Errorf("complete twin without %q", marker.DesiredRootKey)
		}
		if !root.IsObject() {
			return errors.Errorf("complete twin %q is not an object", marker.DesiredRootKey)
		}
		properties = root.Map()
	default:
		return errors.Errorf("unknown update scope %s", update.Scope)
	}

	for _, key := range t.featureKeys() {
		value, ok := properties[key]
		if !ok && update.Scope == Partial {
			continue
		}
		if err := t.features[key].UpdateDesired(ctx, update.Scope, value); err != nil {
			return errors.WithMessagef(err, "desired property %q", key)
		}
		log.WithField("key", key).Debug("applied desired property")
	}
	return nil
}

func (t *Twin) featureKeys() []string {
	keys := make([]string, 0, len(t.features))
	for key := range t.features {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
