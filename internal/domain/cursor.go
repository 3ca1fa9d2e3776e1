package domain

import (
	"time"
)

// ChangeCursor records the earliest month whose inputs changed since the last
// persisted calculation, globally and per pool.
// When Active is false only the Global cursor is meaningful.
type ChangeCursor struct {
	Active bool
	Global time.Time
	Pools  map[string]time.Time
}

// NewChangeCursor creates a cursor with nothing pending as of now
func NewChangeCursor(now time.Time, active bool) *ChangeCursor {
	return &ChangeCursor{
		Active: active,
		Global: MonthStart(now),
		Pools:  make(map[string]time.Time),
	}
}

// Lower moves the cursor of pool (and the global cursor) back to the month
// containing t. Cursors never move forward.
func (c *ChangeCursor) Lower(pool string, t time.Time) {
	m := MonthStart(t)
	if m.Before(c.Global) {
		c.Global = m
	}
	if !c.Active || pool == "" {
		return
	}
	if c.Pools == nil {
		c.Pools = make(map[string]time.Time)
	}
	if existing, ok := c.Pools[pool]; !ok || m.Before(existing) {
		c.Pools[pool] = m
	}
}

// Since returns the cursor for pool.
// Pools without their own cursor fall back to the global cursor when the cursor
// is not active, and to fallback otherwise ("nothing pending").
func (c *ChangeCursor) Since(pool string, fallback time.Time) time.Time {
	if !c.Active {
		return c.Global
	}
	if t, ok := c.Pools[pool]; ok {
		return t
	}
	return MonthStart(fallback)
}

// Clone returns a deep copy of the cursor
func (c *ChangeCursor) Clone() *ChangeCursor {
	out := &ChangeCursor{Active: c.Active, Global: c.Global, Pools: make(map[string]time.Time, len(c.Pools))}
	for k, v := range c.Pools {
		out.Pools[k] = v
	}
	return out
}
