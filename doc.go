// Package ankibridge is the client side of the command bridge to the
// collection engine.
//
// The engine owns all collection state. The host never touches it directly:
// every operation is an encoded command envelope passed through a single
// opaque call, answered by an encoded response envelope. While a call is in
// flight the engine may stream progress notifications back through a
// callback, and the host's answer to each one tells the engine whether to
// keep going.
//
// # Architecture Overview
//
//	ankibridge/          Root package with the Engine and Handle call boundary
//	├── wire/            Protobuf-compatible codec for every envelope and payload
//	├── backend/         Typed command methods, error classification, lifecycle
//	├── progress/        Progress event decoding and observer plumbing
//	├── errors/          Structured bridge errors and contract violations
//	├── engine/          Engine compiled to a core wasm module, hosted by wazero
//	├── remote/          Engine reached over a websocket, client and server
//	├── enginetest/      Scriptable in-process engine for tests
//	├── config/          YAML configuration for the command line tool
//	└── cmd/ankibridge/  Command line tool
//
// # Quick Start
//
//	eng, err := engine.NewWazeroEngine(ctx, wasmBytes, engine.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	b, err := backend.Open(ctx, eng, backend.Paths{
//	    CollectionPath:  "collection.anki2",
//	    MediaFolderPath: "collection.media",
//	    MediaDBPath:     "collection.media.db2",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close(ctx)
//
//	text, tags, err := b.ExtractAVTags(ctx, "Hello [sound:a.mp3]", true)
//
// # Errors
//
// Errors reported by the engine are returned as *backend.Error and match the
// backend sentinels with errors.Is:
//
//	if errors.Is(err, backend.ErrInterrupted) {
//	    // the progress observer asked the engine to stop
//	}
//
// A response that violates the protocol (unknown variant, wrong number of
// union members, a response for a different command) is not an error value.
// It means client and engine disagree about the schema, and the bridge panics
// with an *errors.ContractViolation.
//
// # Progress
//
// Register an observer when opening the backend:
//
//	b, err := backend.Open(ctx, eng, paths,
//	    backend.WithProgressObserver(func(ev progress.Event) bool {
//	        fmt.Println(ev)
//	        return true
//	    }))
//
// The observer runs synchronously on whatever goroutine the engine reports
// progress from, while the originating command is still blocked.
package ankibridge
