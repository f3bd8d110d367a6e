package domain

import "errors"

// Acquisition errors. Adapters wrap these with context; check with errors.Is.
var (
	// ErrConnection is returned when the instrument transport cannot be reached.
	ErrConnection = errors.New("wavemeter: connection error")

	// ErrConfigRejected is returned when the instrument reports an invalid setting.
	ErrConfigRejected = errors.New("wavemeter: configuration rejected")

	// ErrTimeout is returned when no reply arrives within the read timeout.
	ErrTimeout = errors.New("wavemeter: timeout")

	// ErrParse is returned when an instrument reply is not a valid number.
	ErrParse = errors.New("wavemeter: malformed reply")

	// ErrIO is returned when the sample log cannot be written or flushed.
	ErrIO = errors.New("wavemeter: log write failed")

	// ErrOutOfOrder is returned when a sample does not follow the previous one
	// in elapsed time. The log rejects it rather than write an unordered row.
	ErrOutOfOrder = errors.New("wavemeter: sample out of order")
)

// Lifecycle errors.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running session.
	ErrAlreadyRunning = errors.New("wavemeter: already running")

	// ErrNotRunning is returned when Stop() is called on a session that is not running.
	ErrNotRunning = errors.New("wavemeter: not running")

	// ErrShutdownTimeout is returned when the acquisition loop does not stop in time.
	ErrShutdownTimeout = errors.New("wavemeter: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("wavemeter: invalid configuration")
)

// IsTransient reports whether err only affects a single tick.
// Timeouts and malformed replies are transient; everything else is fatal.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrParse)
}
