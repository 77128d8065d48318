package messenger

import (
	"sync"
)

// AckManager correlates outgoing requests with their acknowledgments
type AckManager[K comparable] struct {
	mu      sync.Mutex
	pending map[K]chan struct{}
}

func NewAckManager[K comparable]() *AckManager[K] {
	return &AckManager[K]{
		pending: make(map[K]chan struct{}),
	}
}

// WaitForAck registers a waiter for id. The returned channel receives once
// when HandleAck(id) is called. Only one waiter per id may be pending.
func (m *AckManager[K]) WaitForAck(id K) (<-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[id]; ok {
		return nil, ErrAckPending
	}

	ch := make(chan struct{}, 1)
	m.pending[id] = ch
	return ch, nil
}

// HandleAck resolves and removes the waiter for id; unknown ids are ignored
func (m *AckManager[K]) HandleAck(id K) bool {
	m.mu.Lock()
	ch, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if ok {
		ch <- struct{}{}
	}
	return ok
}

// Cancel drops the waiter for id if it is still the one registered by ch
func (m *AckManager[K]) Cancel(id K, ch <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.pending[id]; ok && (<-chan struct{})(cur) == ch {
		delete(m.pending, id)
	}
}

// Pending returns the number of registered waiters
func (m *AckManager[K]) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
