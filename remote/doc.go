// Package remote carries the engine boundary over a websocket, so an engine
// can run in another process.
//
// Each websocket binary message is one wire.Frame. A session is one
// connection:
//
//	client                      server
//	open{init}          ->
//	                    <-      opened | failure
//	command{id, input}  ->
//	                    <-      progress{id, payload}   (zero or more)
//	progress_reply{id}  ->
//	                    <-      response{id, output} | failure{id}
//	close               ->
//
// The server runs commands one at a time and blocks the engine's progress
// callback until the client replies. The client runs the progress callback
// on its read loop; a panic there aborts the command and is re-raised by
// Command on the caller's goroutine.
//
// Serve an engine:
//
//	http.Handle("/engine", remote.NewHandler(eng, logger))
//
// Use it:
//
//	eng, err := remote.Dial(ctx, "ws://127.0.0.1:9017/engine")
//	b, err := backend.Open(ctx, eng, paths)
package remote
