// Package audit implements async event dispatching for session lifecycle events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap logger, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with a ULID, timestamp, type, origin, user,
//     session and device.
//
// This package owns event buffering and sink delivery. It does not decide which
// events to emit; the session manager does.
package audit
