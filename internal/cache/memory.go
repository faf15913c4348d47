package cache

import (
	"container/list"
	"sync"
	"time"
)

// Memory is the in-process tier: a bounded LRU whose entries carry an
// absolute expiry. Expired entries count as misses and are dropped on
// the read path.
type Memory struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

type memEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemory returns an LRU tier holding at most capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Memory{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the cached value for key, or false when absent or expired.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memEntry)
	if !m.now().Before(entry.expiresAt) {
		m.removeLocked(el)
		return nil, false
	}
	m.order.MoveToFront(el)
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true
}

// Put stores value under key until expiresAt, evicting the least
// recently used entry when the tier is full.
func (m *Memory) Put(key string, value []byte, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	if el, ok := m.items[key]; ok {
		entry := el.Value.(*memEntry)
		entry.value = stored
		entry.expiresAt = expiresAt
		m.order.MoveToFront(el)
		return
	}

	el := m.order.PushFront(&memEntry{key: key, value: stored, expiresAt: expiresAt})
	m.items[key] = el
	for m.order.Len() > m.capacity {
		m.removeLocked(m.order.Back())
	}
}

// Invalidate drops key from the tier.
func (m *Memory) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.removeLocked(el)
	}
}

// Len reports the number of resident entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *Memory) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	entry := el.Value.(*memEntry)
	delete(m.items, entry.key)
	m.order.Remove(el)
}
