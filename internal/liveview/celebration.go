package liveview

import (
	"sync"
	"time"
)

// celebration is the Idle -> Celebrating(expiresAt) -> Idle machine behind State.LeveledUp.
// Each trigger re-arms the timer; a generation counter makes stale timer callbacks no-ops.
type celebration struct {
	mu        sync.Mutex
	window    time.Duration
	now       func() time.Time
	onExpire  func()
	timer     *time.Timer
	gen       uint64
	active    bool
	expiresAt time.Time
}

func newCelebration(window time.Duration, now func() time.Time, onExpire func()) *celebration {
	return &celebration{window: window, now: now, onExpire: onExpire}
}

// trigger enters (or restarts) the celebrating state.
func (c *celebration) trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.active = true
	c.expiresAt = c.now().Add(c.window)
	c.timer = time.AfterFunc(c.window, func() { c.expire(gen) })
}

func (c *celebration) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.timer = nil
	c.mu.Unlock()

	if c.onExpire != nil {
		c.onExpire()
	}
}

// status reports whether the machine is celebrating and until when.
func (c *celebration) status() (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.expiresAt
}

// stop returns to Idle without firing onExpire.
func (c *celebration) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.active = false
}
