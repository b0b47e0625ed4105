package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterAllow(t *testing.T) {
	limiter := New(5, time.Second)
	defer limiter.Stop()
	key := "test-key"

	for i := 0; i < 5; i++ {
		allowed := limiter.Allow(key)
		assert.True(t, allowed, "Request %d should be allowed", i+1)
	}

	allowed := limiter.Allow(key)
	assert.False(t, allowed, "Request 6 should be blocked")
}

func TestLimiterTokenRefill(t *testing.T) {
	limiter := New(2, 100*time.Millisecond)
	defer limiter.Stop()

	now := time.Now()
	limiter.now = func() time.Time { return now }
	key := "refill-test"

	assert.True(t, limiter.Allow(key))
	assert.True(t, limiter.Allow(key))
	assert.False(t, limiter.Allow(key))

	now = now.Add(50 * time.Millisecond)
	assert.True(t, limiter.Allow(key), "one token per rate interval")
	assert.False(t, limiter.Allow(key))

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow(key))
	assert.True(t, limiter.Allow(key))
	assert.False(t, limiter.Allow(key), "refill is capped at rate")
}

func TestLimiterConcurrency(t *testing.T) {
	limiter := New(100, time.Hour)
	defer limiter.Stop()
	key := "concurrent-test"

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- limiter.Allow(key)
		}()
	}

	wg.Wait()
	close(allowed)

	allowedCount := 0
	for a := range allowed {
		if a {
			allowedCount++
		}
	}

	assert.Equal(t, 100, allowedCount)
}

func TestLimiterDifferentKeys(t *testing.T) {
	limiter := New(2, time.Second)
	defer limiter.Stop()

	assert.True(t, limiter.Allow("key1"))
	assert.True(t, limiter.Allow("key1"))
	assert.False(t, limiter.Allow("key1"))

	assert.True(t, limiter.Allow("key2"))
	assert.True(t, limiter.Allow("key2"))
	assert.False(t, limiter.Allow("key2"))
}

func TestLimiterEvictsIdleBuckets(t *testing.T) {
	limiter := New(1, time.Second)
	defer limiter.Stop()

	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("idle"))
	assert.False(t, limiter.Allow("idle"))

	now = now.Add(10 * time.Minute)
	limiter.evictIdle()

	limiter.mu.Lock()
	_, exists := limiter.buckets["idle"]
	limiter.mu.Unlock()
	assert.False(t, exists)
}
