package ankibridge

import "context"

// ProgressFunc receives an encoded Progress message from the engine while a
// command is running. Returning false asks the engine to interrupt the
// command; the engine decides when to honor it.
type ProgressFunc func(progress []byte) bool

// Engine opens engine instances.
type Engine interface {
	// Open starts one engine instance from an encoded BackendInit.
	Open(ctx context.Context, init []byte) (Handle, error)
}

// Handle is one open engine instance. A Handle is used by one caller at a time.
type Handle interface {
	// Command sends an encoded BackendInput and returns the encoded
	// BackendOutput. longRunning marks calls that may block for a long time.
	Command(ctx context.Context, input []byte, longRunning bool) ([]byte, error)

	// SetProgressCallback installs fn as the sole progress callback,
	// replacing any previous one. A nil fn discards progress.
	SetProgressCallback(fn ProgressFunc)

	// Close releases the engine instance.
	Close(ctx context.Context) error
}
