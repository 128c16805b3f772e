// Package engine hosts an embedded engine compiled to a core WebAssembly
// module, using wazero.
//
// # Architecture
//
//	WazeroEngine - Compiles the module once and implements ankibridge.Engine
//	Instance     - One module instance with one open backend (ankibridge.Handle)
//
// Every Open instantiates a fresh anonymous module instance, so instances
// share no guest state.
//
// # Module ABI
//
// The module exports:
//
//	memory
//	bridge_alloc(size i32) -> ptr i32
//	bridge_open(ptr, len i32) -> handle i32          0 rejects the descriptor
//	bridge_command(handle, ptr, len, long i32) -> i64  response ptr<<32 | len
//	bridge_close(handle i32)                          optional
//
// and may import:
//
//	bridge.progress(handle, ptr, len i32) -> i32      0 asks the engine to stop
//
// Buffers written by the host come from bridge_alloc and belong to the
// guest once passed to an export. A response buffer must stay valid until
// the next call into the instance; the host copies it immediately.
//
// Modules that import wasi_snapshot_preview1 get WASI with the directories
// listed in Config.Mounts. Reactor modules have _initialize run on
// instantiation. Guest stdout and stderr are logged at debug level.
//
// # Usage
//
//	eng, err := engine.NewWazeroEngine(ctx, wasmBytes, engine.Config{
//	    MemoryLimitPages: 4096,
//	    Mounts:           []string{collectionDir},
//	})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	b, err := backend.Open(ctx, eng, paths)
package engine
