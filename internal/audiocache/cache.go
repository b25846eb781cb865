package audiocache

import (
	"container/list"
	"sync"
)

// DefaultCapacity is the entry bound used when none is configured.
const DefaultCapacity = 64

// Key identifies one synthesized utterance.
type Key struct {
	Lang string
	Text string
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Cache is a bounded LRU mapping from Key to encoded audio. Reads and writes
// both count as access. All methods are safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[Key]*list.Element
	order    *list.List // front = most recently used
	onEvict  func(Key)

	hits      uint64
	misses    uint64
	evictions uint64
}

type entry struct {
	key   Key
	audio []byte
}

// New creates an empty cache holding at most capacity entries. A
// non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[Key]*list.Element, capacity),
		order:    list.New(),
	}
}

// SetEvictHook registers a callback invoked for every evicted key. The hook
// runs with the cache lock held and must not call back into the cache.
func (c *Cache) SetEvictHook(hook func(Key)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = hook
}

// Get returns the audio stored for key and marks it most recently used.
func (c *Cache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return elem.Value.(*entry).audio, true
}

// Put stores audio under key, replacing any previous value, marks it most
// recently used and evicts least recently used entries beyond capacity.
func (c *Cache) Put(key Key, audio []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry).audio = audio
		c.order.MoveToFront(elem)
	} else {
		c.items[key] = c.order.PushFront(&entry{key: key, audio: audio})
	}

	for c.order.Len() > c.capacity {
		c.evictOldest()
	}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity reports the configured entry bound.
func (c *Cache) Capacity() int { return c.capacity }

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.order.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// keys returns cached keys from most to least recently used.
func (c *Cache) keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Key, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*entry).key)
	}
	return out
}

func (c *Cache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.evictions++
	if c.onEvict != nil {
		c.onEvict(ent.key)
	}
}
