package testfixtures

import (
	"sync"
	"time"
)

// Clock is a controllable time source for booking tests. A zero start puts it
// at ReferenceTime, the Monday morning before the first fixture occurrence.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc adapts the clock to the func() time.Time the services take.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// AdvanceDays moves the clock by whole calendar days in loc, keeping the local
// wall-clock time across DST changes the way projected occurrences do.
func (c *Clock) AdvanceDays(days int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.In(loc).AddDate(0, 0, days)
	return c.current
}

// NextOccurrence returns the first instant strictly after now that falls on
// day at hour:minute local time in loc.
func (c *Clock) NextOccurrence(day time.Weekday, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	now := c.Now().In(loc)
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
	for candidate.Weekday() != day || !candidate.After(now) {
		candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day()+1, hour, minute, 0, 0, loc)
	}
	return candidate
}
