package backend

import (
	"github.com/wippyai/anki-bridge/errors"
	"github.com/wippyai/anki-bridge/wire"
)

var wireKinds = map[wire.ErrorKind]ErrorKind{
	wire.ErrorInterrupted:       KindInterrupted,
	wire.ErrorNetwork:           KindNetwork,
	wire.ErrorIO:                KindIO,
	wire.ErrorDB:                KindDB,
	wire.ErrorTemplateParse:     KindTemplateParse,
	wire.ErrorInvalidInput:      KindInvalidInput,
	wire.ErrorAnkiWebAuthFailed: KindAnkiWebAuthFailed,
	wire.ErrorAnkiWebMisc:       KindAnkiWebMisc,
}

// classify converts the engine's error union into an *Error. An error kind
// this version does not know means client and engine disagree on the
// schema, and classify panics.
func classify(we *wire.BackendError) *Error {
	kind, ok := wireKinds[we.Kind]
	if !ok {
		errors.Violation(errors.UnknownDiscriminant(errors.PhaseDispatch, "BackendError", int32(we.Kind)))
	}
	e := &Error{Kind: kind}
	switch kind {
	case KindInterrupted, KindAnkiWebAuthFailed:
	case KindTemplateParse:
		e.Info = we.Info
		e.qSide = we.QSide
	default:
		e.Info = we.Info
	}
	return e
}
