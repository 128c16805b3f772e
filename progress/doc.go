// Package progress delivers engine progress notifications to the host.
//
// The engine reports progress by calling a callback with an encoded Progress
// message while a command is still running. A Channel decodes each message
// into an Event and hands it to the registered Observer; the observer's
// boolean answer goes straight back to the engine. Returning false is a
// request, not an abort: the engine may finish the current unit of work and
// then fail the pending command with an interrupted error, or complete it.
//
// Canceller adapts context cancellation to that protocol.
package progress
