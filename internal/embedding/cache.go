package embedding

import (
	"container/list"
	"crypto/sha256"
	"sync"
)

// cacheKey is the first 16 bytes of the SHA-256 of the input text.
type cacheKey [16]byte

func keyFor(text string) cacheKey {
	sum := sha256.Sum256([]byte(text))
	var k cacheKey
	copy(k[:], sum[:16])
	return k
}

// lruCache is a bounded content-hash → vector cache. Embeddings are
// deterministic per model version, so a process-local cache never
// serves stale data.
type lruCache struct {
	mu    sync.Mutex
	cap   int
	items map[cacheKey]*list.Element
	order *list.List
}

type cacheEntry struct {
	key cacheKey
	vec []float32
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		cap:   capacity,
		items: make(map[cacheKey]*list.Element),
		order: list.New(),
	}
}

func (c *lruCache) get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[keyFor(text)]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).vec, true
}

func (c *lruCache) put(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := keyFor(text)
	if el, ok := c.items[k]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).vec = vec
		return
	}
	el := c.order.PushFront(&cacheEntry{key: k, vec: vec})
	c.items[k] = el
	for c.order.Len() > c.cap {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
