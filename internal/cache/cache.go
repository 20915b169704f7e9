//
// package cache holds the outcome similarity grouping between
// requests, in process or in redis.
//
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/nsip/otf-outcomes/calc"
)

//
// Memory keeps one grouping in process. A zero ttl never expires.
//
type Memory struct {
	mu       sync.RWMutex
	grouping *calc.OutcomeGrouping
	ttl      time.Duration
	now      func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now}
}

func (m *Memory) Get(ctx context.Context, threshold float64) (*calc.OutcomeGrouping, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.grouping == nil || m.grouping.Threshold != threshold {
		return nil, false, nil
	}
	if m.ttl > 0 && m.now().Sub(m.grouping.ComputedAt) > m.ttl {
		return nil, false, nil
	}
	return m.grouping, true, nil
}

func (m *Memory) Put(ctx context.Context, g *calc.OutcomeGrouping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grouping = g
	return nil
}

func (m *Memory) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grouping = nil
	return nil
}
