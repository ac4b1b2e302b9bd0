package scheduler

import (
	"context"
	"sync"
	"time"
)

// domainGate caps concurrent runs per remote host so one tick never
// points several workers at the same site. Slots are created lazily and
// kept for the process lifetime; at catalog scale the map stays small.
type domainGate struct {
	width int

	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newDomainGate(width int) *domainGate {
	if width <= 0 {
		width = 1
	}
	return &domainGate{
		width: width,
		slots: make(map[string]chan struct{}),
	}
}

// Acquire claims a slot for host, waiting at most wait. On success the
// returned release must be called exactly once; ok is false when the
// slot never freed or the context died first.
func (g *domainGate) Acquire(ctx context.Context, host string, wait time.Duration) (release func(), ok bool) {
	g.mu.Lock()
	slot, exists := g.slots[host]
	if !exists {
		slot = make(chan struct{}, g.width)
		g.slots[host] = slot
	}
	g.mu.Unlock()

	// Fast path keeps the common uncontended case timer-free.
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, true
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
