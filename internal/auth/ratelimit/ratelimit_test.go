package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)}
	l := New(window)
	l.now = clock.now
	return l, clock
}

func TestAllowExhaustsAndRefills(t *testing.T) {
	l, clock := newTestLimiter(time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("ip:10.0.0.1", 3), "request %d", i)
	}
	assert.False(t, l.Allow("ip:10.0.0.1", 3))
	assert.True(t, l.Allow("ip:10.0.0.2", 3), "keys are independent")

	clock.advance(20 * time.Second)
	assert.True(t, l.Allow("ip:10.0.0.1", 3))
	assert.False(t, l.Allow("ip:10.0.0.1", 3))
}

func TestZeroLimitDisables(t *testing.T) {
	l, _ := newTestLimiter(time.Minute)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("k", 0))
	}
	assert.Zero(t, l.Len())
}

func TestResetAndEvict(t *testing.T) {
	l, clock := newTestLimiter(time.Minute)
	assert.True(t, l.Allow("a", 1))
	assert.False(t, l.Allow("a", 1))
	l.Reset("a")
	assert.True(t, l.Allow("a", 1))

	assert.True(t, l.Allow("b", 1))
	clock.advance(3 * time.Minute)
	l.evictIdle()
	assert.Zero(t, l.Len())
}
