package cache

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache is a two-tier string cache: a short-lived in-process map in front of Redis.
type Cache struct {
	rdb      *redis.Client
	localTTL time.Duration
	localMu  sync.RWMutex
	localMap map[string]cacheEntry
	quit     chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

func New(rdb *redis.Client, localTTL time.Duration) *Cache {
	if localTTL <= 0 {
		localTTL = 30 * time.Second
	}
	c := &Cache{
		rdb:      rdb,
		localTTL: localTTL,
		localMap: make(map[string]cacheEntry),
		quit:     make(chan struct{}),
	}

	go c.cleanup(time.Minute)
	return c
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	c.localMu.RLock()
	if entry, ok := c.localMap[key]; ok && time.Now().Before(entry.expiresAt) {
		c.localMu.RUnlock()
		return entry.value, true, nil
	}
	c.localMu.RUnlock()

	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	c.storeLocal(key, val, c.localTTL)
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return err
	}

	c.storeLocal(key, value, min(ttl, c.localTTL))
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	c.localMu.Lock()
	delete(c.localMap, key)
	c.localMu.Unlock()

	return c.rdb.Del(ctx, key).Err()
}

func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
}

func (c *Cache) storeLocal(key, value string, ttl time.Duration) {
	c.localMu.Lock()
	c.localMap[key] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	c.localMu.Unlock()
}

func (c *Cache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	c.localMu.Lock()
	defer c.localMu.Unlock()

	now := time.Now()
	for key, entry := range c.localMap {
		if now.After(entry.expiresAt) {
			delete(c.localMap, key)
		}
	}
}
