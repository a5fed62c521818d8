// Package domain contains the core domain values for telship.
//
// This package represents the innermost layer of the application. It has
// no dependencies on infrastructure concerns (HTTP, file system, logging) and
// contains only values and their invariants.
//
// # Values
//
//   - [Transmission]: one compressed batch of serialized records plus its
//     content type and content encoding
//   - [SendResult]: the explicit outcome of handing a Transmission to an output
//
// Errors are sentinel values checked with errors.Is.
package domain
