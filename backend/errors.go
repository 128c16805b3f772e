package backend

import (
	stderrors "errors"
	"fmt"
)

// ErrorKind identifies a failure reported by the engine.
type ErrorKind int

const (
	KindInterrupted ErrorKind = iota + 1
	KindNetwork
	KindIO
	KindDB
	KindTemplateParse
	KindInvalidInput
	KindAnkiWebAuthFailed
	KindAnkiWebMisc
)

var kindNames = map[ErrorKind]string{
	KindInterrupted:       "interrupted",
	KindNetwork:           "network error",
	KindIO:                "io error",
	KindDB:                "db error",
	KindTemplateParse:     "template parse error",
	KindInvalidInput:      "invalid input",
	KindAnkiWebAuthFailed: "ankiweb auth failed",
	KindAnkiWebMisc:       "ankiweb error",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a failure reported by the engine for one command.
//
// Info is the engine's message, verbatim. Interrupted and
// AnkiWebAuthFailed carry no message.
type Error struct {
	Info  string
	Kind  ErrorKind
	qSide bool
}

// Error returns Info unchanged, or a fixed text for kinds without a message.
func (e *Error) Error() string {
	switch e.Kind {
	case KindInterrupted:
		return "interrupted"
	case KindAnkiWebAuthFailed:
		return "ankiweb authentication failed"
	}
	return e.Info
}

// QuestionSide reports whether a template parse error is in the question
// template. It is false for every other kind.
func (e *Error) QuestionSide() bool {
	return e.Kind == KindTemplateParse && e.qSide
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInterrupted       = &Error{Kind: KindInterrupted}
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrIO                = &Error{Kind: KindIO}
	ErrDB                = &Error{Kind: KindDB}
	ErrTemplateParse     = &Error{Kind: KindTemplateParse}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrAnkiWebAuthFailed = &Error{Kind: KindAnkiWebAuthFailed}
	ErrAnkiWebMisc       = &Error{Kind: KindAnkiWebMisc}
)

// IsInterrupted reports whether err is the engine honoring an interruption
// request from the progress observer.
func IsInterrupted(err error) bool {
	return stderrors.Is(err, ErrInterrupted)
}

// KindOf returns the kind of an engine error, or 0 when err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return 0
}
