// Package domain contains the core value types and errors for wavemeter.
//
// This package is the innermost layer of the application. It has no
// dependencies on infrastructure concerns (instrument transports, file
// system, logging) and contains only the measurement model.
//
// # Entities
//
//   - [Sample]: One timestamped scalar reading, immutable once produced
//   - [InstrumentConfig]: Measurement setup forwarded to the instrument once per session
//   - [Property], [Medium]: Enumerations used by InstrumentConfig
//
// # Errors
//
// Adapters wrap the sentinel errors declared in errors.go so callers can
// classify failures with errors.Is. [IsTransient] reports whether a failure
// should only skip the current tick.
package domain
