package messenger

// CacheSet is a bounded set that forgets its oldest entry when full.
// It is not safe for concurrent use.
type CacheSet[T comparable] struct {
	items map[T]struct{}
	order []T
	next  int
	count int
}

// NewCacheSet creates a set holding at most capacity entries
func NewCacheSet[T comparable](capacity int) *CacheSet[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &CacheSet[T]{
		items: make(map[T]struct{}, capacity),
		order: make([]T, capacity),
	}
}

// Insert adds v and reports whether it was not already present
func (c *CacheSet[T]) Insert(v T) bool {
	if _, ok := c.items[v]; ok {
		return false
	}

	if c.count == len(c.order) {
		delete(c.items, c.order[c.next])
	} else {
		c.count++
	}

	c.order[c.next] = v
	c.next = (c.next + 1) % len(c.order)
	c.items[v] = struct{}{}
	return true
}

// Contains reports whether v is resident
func (c *CacheSet[T]) Contains(v T) bool {
	_, ok := c.items[v]
	return ok
}

// Len returns the number of resident entries
func (c *CacheSet[T]) Len() int {
	return c.count
}
