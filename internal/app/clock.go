package app

import "time"

// Clock supplies time to the acquisition loop. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers scheduling events.
//
// Implementations must not accumulate a backlog: if the receiver falls
// behind, pending ticks collapse into one. time.Ticker behaves this way
// (its channel has a buffer of one and extra ticks are dropped).
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock returns the wall clock. Times it returns carry a monotonic
// reading, so elapsed durations are immune to wall clock adjustments.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }
