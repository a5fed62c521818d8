// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the delivery pipeline and the outside
// world. They define what the pipeline needs from external systems without
// specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [TransmissionOutput]: Delivers one Transmission to one destination
//   - [TransmissionStore]: A TransmissionOutput that can hand back persisted work
//   - [BatchSerializer]: Turns a batch of serialized records into a Transmission
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters, internal/codec) implement them
// with concrete implementations (HTTP, file system, zerolog, gzip).
package ports
