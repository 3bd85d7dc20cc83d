package iothub

import (
	"sync"
	"time"

	"github.com/karlseguin/ccache"
)

const pendingTimeout = time.Minute

type requestKind string

const (
	requestTwinGet  requestKind = "twin-get"
	requestReported requestKind = "reported"
)

// pendingRequests remembers the requests awaiting a response from the hub.
// Requests the hub never answers expire. Once stopped, nothing is remembered.
type pendingRequests struct {
	mu      sync.RWMutex
	stopped bool
	cache   *ccache.Cache
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{
		cache: ccache.New(ccache.Configure().MaxSize(1000).ItemsToPrune(100)),
	}
}

func (p *pendingRequests) add(rid string, kind requestKind) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return
	}
	p.cache.Set(rid, kind, pendingTimeout)
}

// take returns and forgets the request.
func (p *pendingRequests) take(rid string) (requestKind, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return "", false
	}
	item := p.cache.Get(rid)
	if item == nil {
		return "", false
	}
	p.cache.Delete(rid)
	if item.Expired() {
		return "", false
	}
	kind, ok := item.Value().(requestKind)
	return kind, ok
}

func (p *pendingRequests) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	p.cache.Stop()
}
