// Package backend is the typed host-side surface of the engine bridge.
//
// Open starts an engine instance and returns a Backend with one method per
// engine command. Each method converts its arguments to the command's wire
// message, sends the command envelope through the engine handle and converts
// the response back to native values.
//
// # Errors
//
// Failures reported by the engine are returned as *Error and keep the
// engine's message verbatim. Match them with errors.Is against the sentinels
// (ErrInterrupted, ErrNetwork, ErrIO, ErrDB, ErrTemplateParse,
// ErrInvalidInput, ErrAnkiWebAuthFailed, ErrAnkiWebMisc). Template parse
// errors also report which template failed through QuestionSide.
//
// A failure of the engine call itself (a crashed module, a dropped
// connection) is returned as an *errors.Error with phase "engine".
//
// Responses that break the protocol are not returned as errors. An unknown
// union variant, a union with zero or several members, or a response for a
// different command panics with *errors.ContractViolation, as does misuse of
// the Backend itself: commands before Open, after Close, or from two
// goroutines at once.
//
// # Concurrency
//
// A Backend belongs to one caller at a time and does no internal locking.
// Callers that serialize host work under a lock can pass it to WithHostLock;
// the Backend then releases it while a long-running command (SyncMedia) is
// inside the engine and takes it back before returning.
package backend
