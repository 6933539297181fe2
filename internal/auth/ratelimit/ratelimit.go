// Package ratelimit implements an in-memory token-bucket limiter keyed by
// API key ID or client address.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter grants each key `limit` requests per window, refilled
// continuously.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration
	now     func() time.Time
}

func New(window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		entries: make(map[string]*entry),
		window:  window,
		now:     time.Now,
	}
}

// Window returns the refill window.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string, limit int) bool {
	if limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, exists := l.entries[key]
	if !exists {
		l.entries[key] = &entry{tokens: float64(limit - 1), lastCheck: now}
		return true
	}

	elapsed := now.Sub(e.lastCheck)
	e.lastCheck = now
	rate := float64(limit) / l.window.Seconds()
	e.tokens += elapsed.Seconds() * rate
	if e.tokens > float64(limit) {
		e.tokens = float64(limit)
	}

	if e.tokens < 1 {
		return false
	}
	e.tokens--
	return true
}

// Reset clears the state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Len reports how many keys are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartCleanup evicts idle keys every interval until ctx is cancelled.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.evictIdle()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// evictIdle drops keys untouched for two windows; their buckets would be
// full again anyway.
func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, e := range l.entries {
		if e.lastCheck.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
