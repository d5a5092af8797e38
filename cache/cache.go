package cache

import (
	"sync"
	"time"
)

type Item struct {
	data      []byte
	expiredAt time.Time
}

type Cache struct {
	store map[string]Item
	lock  *sync.RWMutex
	clock func() time.Time
}

func New(clock func() time.Time) *Cache {
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		store: map[string]Item{},
		lock:  &sync.RWMutex{},
		clock: clock,
	}
}

func (c *Cache) Get(key string) ([]byte, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	item, ok := c.store[key]
	if !ok {
		return nil, false
	}

	if c.clock().After(item.expiredAt) {
		return nil, false
	}

	return item.data, true
}

func (c *Cache) Set(key string, data []byte, lifeTime time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.store[key] = Item{
		data:      data,
		expiredAt: c.clock().Add(lifeTime),
	}
}

// Sweep drops expired items. Get already hides them, this only bounds memory.
func (c *Cache) Sweep(now time.Time) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	removed := 0
	for key, item := range c.store {
		if now.After(item.expiredAt) {
			delete(c.store, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.store)
}
