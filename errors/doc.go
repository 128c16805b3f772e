// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, Go type and wire message names,
// and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindTagCount).
//		Message("BackendOutput").
//		Detail("union has %d tags set", 2).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnknownDiscriminant(errors.PhaseDecode, "AVTag", 9)
//	err := errors.Truncated(errors.PhaseDecode, "RenderCardOut", cause)
//
// Protocol mismatches between client and engine are not returned as errors.
// They abort through Violation, which panics with a *ContractViolation.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
