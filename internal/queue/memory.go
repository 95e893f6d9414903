package queue

import (
	"context"
	"sync"
)

// MemoryPublisher records enqueued payloads for inspection in tests
// and local runs.
type MemoryPublisher struct {
	// Err, when set, is returned by every Enqueue.
	Err error

	mu       sync.RWMutex
	payloads []any
}

// NewMemoryPublisher returns an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Enqueue implements crawl.Publisher.
func (p *MemoryPublisher) Enqueue(_ context.Context, payload any) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

// Payloads returns the recorded publishes.
func (p *MemoryPublisher) Payloads() []any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]any, len(p.payloads))
	copy(out, p.payloads)
	return out
}
