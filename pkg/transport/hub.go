package transport

import (
	"context"
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("transport")

// DefaultSubscriberBuffer is the per-subscriber channel size
const DefaultSubscriberBuffer = 256

// Hub fans out values to subscribers. Slow subscribers lose values
// instead of stalling the publisher, matching the lossy transport model.
type Hub[T any] struct {
	name   string
	buffer int

	mu     sync.Mutex
	subs   map[chan T]struct{}
	closed bool
}

// NewHub creates a hub; name is used in log lines
func NewHub[T any](name string, buffer int) *Hub[T] {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub[T]{
		name:   name,
		buffer: buffer,
		subs:   make(map[chan T]struct{}),
	}
}

// Subscribe returns a channel closed when ctx is done or the hub closes
func (h *Hub[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.unsubscribe(ch)
	}()

	return ch
}

func (h *Hub[T]) unsubscribe(ch chan T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Publish delivers v to every subscriber without blocking
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- v:
		default:
			log.Warnf("⚠️  %s subscriber full, dropping event", h.name)
		}
	}
}

// Len returns the number of active subscribers
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes all subscriber channels
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
