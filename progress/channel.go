package progress

import (
	"context"
	stderrors "errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/anki-bridge/errors"
)

// Observer receives decoded progress events. Returning false asks the engine
// to interrupt the running command.
type Observer func(ev Event) bool

// Channel turns raw engine progress notifications into observer calls.
// It holds no locks and never calls back into the command path, so it is
// safe to run on the engine's goroutine while a command is blocked.
type Channel struct {
	observer Observer
	logger   *zap.Logger
}

// NewChannel creates a channel delivering to observer. A nil observer lets
// every command run to completion.
func NewChannel(observer Observer, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{observer: observer, logger: logger}
}

// OnRawProgress decodes raw and returns the observer's verdict unchanged.
// It matches ankibridge.ProgressFunc.
//
// An undecodable notification means the engine speaks a different schema;
// OnRawProgress panics with an *errors.ContractViolation in that case.
func (c *Channel) OnRawProgress(raw []byte) bool {
	ev, err := Decode(raw)
	if err != nil {
		var e *errors.Error
		if !stderrors.As(err, &e) {
			e = errors.Wrap(errors.PhaseProgress, errors.KindInvalidData, err, "decode progress")
		}
		c.logger.Error("undecodable progress notification", zap.Error(err), zap.Int("size", len(raw)))
		errors.Violation(e)
	}

	if ce := c.logger.Check(zap.DebugLevel, "progress"); ce != nil {
		ce.Write(zap.Stringer("event", ev))
	}

	if c.observer == nil {
		return true
	}
	keepGoing := c.observer(ev)
	if !keepGoing {
		c.logger.Debug("observer requested interruption", zap.Stringer("event", ev))
	}
	return keepGoing
}

// Canceller wraps an observer so that cancellation of a context, or an
// explicit Cancel, becomes a cooperative interruption request.
type Canceller struct {
	ctx       context.Context
	next      Observer
	cancelled atomic.Bool
}

// NewCanceller returns a Canceller forwarding events to next, which may be nil.
func NewCanceller(ctx context.Context, next Observer) *Canceller {
	return &Canceller{ctx: ctx, next: next}
}

// Observe forwards ev to the wrapped observer and reports false once the
// context is done or Cancel has been called. The wrapped observer still sees
// every event.
func (c *Canceller) Observe(ev Event) bool {
	keepGoing := true
	if c.next != nil {
		keepGoing = c.next(ev)
	}
	return keepGoing && !c.Cancelled()
}

// Cancel requests interruption at the next progress notification.
func (c *Canceller) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether interruption has been requested.
func (c *Canceller) Cancelled() bool {
	if c.cancelled.Load() {
		return true
	}
	return c.ctx != nil && c.ctx.Err() != nil
}
