package ports

import (
	"context"

	"github.com/spectools/wavemeter/internal/domain"
)

// Instrument translates abstract configure/read operations into device
// exchanges. Hardware and synthetic implementations behave identically to
// callers.
type Instrument interface {
	// Configure applies cfg to the instrument.
	// Returns an error wrapping domain.ErrConnection if the transport fails,
	// or domain.ErrConfigRejected if the device refuses a setting.
	Configure(ctx context.Context, cfg domain.InstrumentConfig) error

	// ReadSample requests the configured property and parses the reply.
	// Returns an error wrapping domain.ErrTimeout when no reply arrives before
	// ctx expires, or domain.ErrParse when the reply is not a number.
	ReadSample(ctx context.Context) (float64, error)

	// Close releases the transport. Safe to call more than once.
	Close() error
}

// Transport is a command/reply exchange with one instrument resource.
// Implementations are not required to be safe for concurrent use.
type Transport interface {
	// Write sends one command line.
	Write(ctx context.Context, cmd string) error

	// Query sends one command line and returns the reply without its terminator.
	Query(ctx context.Context, cmd string) (string, error)

	// Close releases the underlying link.
	Close() error
}
