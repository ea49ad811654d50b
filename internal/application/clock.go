package application

import "time"

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock implementasi default, pakai time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock returns a pre-set instant, advancing by Step on every read so
// stamped timelines stay strictly ordered in tests.
type FixedClock struct {
	Current time.Time
	Step    time.Duration
}

func (c *FixedClock) Now() time.Time {
	now := c.Current
	c.Current = c.Current.Add(c.Step)
	return now
}
