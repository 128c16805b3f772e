// Package enginetest provides an in-process engine for testing code built on
// the bridge, in the spirit of net/http/httptest.
//
// New returns an Engine whose sessions answer every command with a small
// default handler: sound and TTS tag parsing, cloze expansion, an in-memory
// media folder and a media sync that streams progress. Tests replace
// handlers with WithHandler, or take over the raw byte exchange with WithRaw
// to send responses a conforming engine never would.
//
//	eng := enginetest.New(
//	    enginetest.WithHandler(wire.CommandStripAVTags,
//	        func(ctx context.Context, call *enginetest.Call) (wire.Output, *wire.BackendError) {
//	            return nil, enginetest.Failure(wire.ErrorIO, "disk full")
//	        }),
//	)
//	b, err := backend.Open(ctx, eng, backend.Paths{})
package enginetest
