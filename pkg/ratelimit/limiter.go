package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-key token bucket allowing rate events per window,
// refilled continuously at window/rate intervals.
type Limiter struct {
	buckets  map[string]*bucket
	mu       sync.Mutex
	rate     int
	interval time.Duration
	idleTTL  time.Duration
	now      func() time.Time
	quit     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
}

func New(rate int, per time.Duration) *Limiter {
	if rate < 1 {
		rate = 1
	}
	interval := per / time.Duration(rate)
	if interval <= 0 {
		interval = time.Nanosecond
	}

	l := &Limiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		idleTTL:  5 * time.Minute,
		now:      time.Now,
		quit:     make(chan struct{}),
	}

	go l.cleanup(time.Minute)
	return l
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, exists := l.buckets[key]

	if !exists {
		l.buckets[key] = &bucket{
			tokens:     l.rate - 1,
			lastRefill: now,
			lastSeen:   now,
		}
		return true
	}
	b.lastSeen = now

	if refill := int(now.Sub(b.lastRefill) / l.interval); refill > 0 {
		b.tokens = min(l.rate, b.tokens+refill)
		b.lastRefill = b.lastRefill.Add(time.Duration(refill) * l.interval)
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

func (l *Limiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.quit:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}
