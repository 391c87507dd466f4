// Package types defines the data exchanged between a space, its computers and
// job clients.
//
// It contains:
//   - Computer registration info, status and lifecycle events
//   - Execution statistics of a computer
//   - Request and response bodies of the HTTP API
package types
