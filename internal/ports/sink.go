package ports

import "github.com/spectools/wavemeter/internal/domain"

// SampleSink persists samples durably and in order.
type SampleSink interface {
	// Append writes one sample and flushes it to stable storage before returning.
	// Returns an error wrapping domain.ErrIO on failure.
	Append(s domain.Sample) error

	// Close flushes and releases the sink. Idempotent.
	Close() error
}

// Display is a best-effort consumer of samples.
// Failures are reported to the caller but never stop acquisition.
type Display interface {
	// Name identifies the display in logs.
	Name() string

	// Publish adds one sample to the view.
	Publish(s domain.Sample) error

	// Close releases any rendering resources.
	Close() error
}
