package domain

import "time"

// Sample is one timestamped scalar measurement.
// Samples are passed by value and never modified after creation.
type Sample struct {
	// Elapsed is the time since acquisition started. Never negative.
	Elapsed time.Duration

	// Value is the reading exactly as parsed from the instrument.
	Value float64

	// CapturedAt is the capture time. It carries Go's monotonic clock reading
	// when produced by the acquisition loop.
	CapturedAt time.Time
}

// NewSample builds a Sample captured at now for a run that started at start.
// Elapsed is clamped at zero.
func NewSample(start, now time.Time, value float64) Sample {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	return Sample{Elapsed: elapsed, Value: value, CapturedAt: now}
}

// ElapsedSeconds returns Elapsed in seconds.
func (s Sample) ElapsedSeconds() float64 {
	return s.Elapsed.Seconds()
}
