package iothub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPendingRequests(t *testing.T) {
	p := newPendingRequests()
	defer p.stop()

	p.add("1", requestTwinGet)
	kind, ok := p.take("1")
	assert.True(t, ok)
	assert.Equal(t, requestTwinGet, kind)

	_, ok = p.take("1")
	assert.False(t, ok, "requests are answered once")

	p.cache.Set("2", requestReported, -time.Second)
	_, ok = p.take("2")
	assert.False(t, ok, "expired requests are forgotten")
}

func TestPendingRequestsAfterStop(t *testing.T) {
	p := newPendingRequests()
	p.add("1", requestTwinGet)
	p.stop()
	p.stop()

	p.add("2", requestReported)
	_, ok := p.take("1")
	assert.False(t, ok)
	_, ok = p.take("2")
	assert.False(t, ok)
}
