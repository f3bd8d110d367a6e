package log

import "github.com/spectools/wavemeter/internal/ports"

// Noop implements ports.Logger by discarding all log messages.
type Noop = ports.NopLogger

// NewNoop creates a new no-op logger.
func NewNoop() Noop {
	return Noop{}
}

var (
	_ ports.Logger = Noop{}
	_ ports.Logger = (*Zerolog)(nil)
)
