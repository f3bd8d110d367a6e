// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the acquisition core and the outside
// world. They define what the core needs from instruments, log files and
// displays without specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [Instrument]: Configures the instrument and reads single samples
//   - [Transport]: Request/response exchange with a named instrument resource
//   - [SampleSink]: Durable, ordered persistence of samples
//   - [Display]: Best-effort live view of samples
//   - [Logger]: Structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters) implement them with serial, GPIB and TCP
// transports, CSV files, gonum plots and zerolog.
package ports
