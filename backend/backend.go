package backend

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	ankibridge "github.com/wippyai/anki-bridge"
	"github.com/wippyai/anki-bridge/errors"
	"github.com/wippyai/anki-bridge/progress"
	"github.com/wippyai/anki-bridge/wire"
)

type state int32

const (
	stateUninitialized state = iota
	stateOpen
	stateClosed
)

// Backend owns one engine instance and exposes one method per command.
//
// A Backend is used by one caller at a time. Overlapping calls, and calls on
// a Backend that is not open, panic with an *errors.ContractViolation.
// The zero value is an unopened Backend; use Open.
type Backend struct {
	disp     dispatcher
	progress *progress.Channel
	state    atomic.Int32
}

type options struct {
	observer progress.Observer
	logger   *zap.Logger
	hostLock sync.Locker
}

// Option configures Open.
type Option func(*options)

// WithProgressObserver registers the observer that receives progress events
// and decides whether long-running commands continue.
func WithProgressObserver(o progress.Observer) Option {
	return func(opts *options) {
		opts.observer = o
	}
}

// WithLogger sets the logger for this backend instead of the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = l
	}
}

// WithHostLock registers a lock the caller holds while calling Backend
// methods. It is released for the duration of long-running engine calls.
func WithHostLock(l sync.Locker) Option {
	return func(opts *options) {
		opts.hostLock = l
	}
}

// Open starts an engine instance for the collection at paths and installs
// the progress channel as its sole progress callback.
func Open(ctx context.Context, eng ankibridge.Engine, paths Paths, opts ...Option) (*Backend, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = Logger()
	}

	initMsg, err := (&wire.BackendInit{
		CollectionPath:  paths.CollectionPath,
		MediaFolderPath: paths.MediaFolderPath,
		MediaDBPath:     paths.MediaDBPath,
	}).Marshal()
	if err != nil {
		return nil, err
	}

	h, err := eng.Open(ctx, initMsg)
	if err != nil {
		return nil, errors.EngineCall("open engine", err)
	}

	b := &Backend{
		progress: progress.NewChannel(o.observer, o.logger),
	}
	b.disp.handle = h
	b.disp.hostLock = o.hostLock
	b.disp.logger = o.logger
	h.SetProgressCallback(b.progress.OnRawProgress)
	b.state.Store(int32(stateOpen))

	o.logger.Debug("backend opened", zap.String("collection", paths.CollectionPath))
	return b, nil
}

// Close releases the engine instance. Closing is terminal; closing again,
// or closing a Backend that was never opened, does nothing.
func (b *Backend) Close(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(stateOpen), int32(stateClosed)) {
		return nil
	}
	b.disp.handle.SetProgressCallback(nil)
	if err := b.disp.handle.Close(ctx); err != nil {
		return errors.EngineCall("close engine", err)
	}
	b.disp.logger.Debug("backend closed")
	return nil
}

func (b *Backend) mustBeOpen() {
	switch state(b.state.Load()) {
	case stateOpen:
		return
	case stateClosed:
		errors.Violation(errors.Closed("backend"))
	default:
		errors.Violation(errors.NotOpen("backend"))
	}
}

// run dispatches one command after checking the lifecycle state.
func (b *Backend) run(ctx context.Context, in wire.Input, longRunning bool) (wire.Output, error) {
	b.mustBeOpen()
	return b.disp.run(ctx, in, longRunning)
}

// mustDecode panics when a matched response cannot be adapted.
func mustDecode(err error) {
	if err != nil {
		errors.Violation(asBridgeError(errors.PhaseDecode, err))
	}
}
