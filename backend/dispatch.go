package backend

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	ankibridge "github.com/wippyai/anki-bridge"
	"github.com/wippyai/anki-bridge/errors"
	"github.com/wippyai/anki-bridge/wire"
)

// dispatcher runs command envelopes through one engine handle.
type dispatcher struct {
	handle   ankibridge.Handle
	hostLock sync.Locker
	logger   *zap.Logger
	inFlight atomic.Bool
}

// run sends in and returns the success payload of the matching response
// variant, or the classified engine error.
//
// Engine call failures are returned as *errors.Error. A response that cannot
// be decoded, or that answers a different command, panics.
func (d *dispatcher) run(ctx context.Context, in wire.Input, longRunning bool) (wire.Output, error) {
	cmd := in.Command()
	if !d.inFlight.CompareAndSwap(false, true) {
		errors.Violation(errors.New(errors.PhaseDispatch, errors.KindConcurrentCall).
			Message("BackendInput").
			Detail("command %s issued while another command is in flight", cmd).
			Build())
	}
	defer d.inFlight.Store(false)

	input, err := (&wire.BackendInput{Input: in}).Marshal()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := d.call(ctx, input, longRunning)
	if err != nil {
		d.logger.Debug("engine call failed", zap.Stringer("command", cmd), zap.Error(err))
		return nil, errors.EngineCall("command "+cmd.String(), err)
	}

	var out wire.BackendOutput
	if err := out.Unmarshal(raw); err != nil {
		d.logger.Error("undecodable response", zap.Stringer("command", cmd), zap.Error(err))
		errors.Violation(asBridgeError(errors.PhaseDispatch, err))
	}

	if out.Error != nil {
		classified := classify(out.Error)
		d.logger.Debug("command failed",
			zap.Stringer("command", cmd),
			zap.Stringer("kind", classified.Kind),
			zap.Duration("elapsed", time.Since(start)))
		return nil, classified
	}

	if got := out.Result.Command(); got != cmd {
		errors.Violation(errors.DiscriminantMismatch("BackendOutput", cmd, got))
	}

	d.logger.Debug("command completed",
		zap.Stringer("command", cmd),
		zap.Int("input_bytes", len(input)),
		zap.Int("output_bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)))
	return out.Result, nil
}

// call performs the engine call, releasing the host lock around long-running
// commands so other host work can proceed while the engine blocks.
func (d *dispatcher) call(ctx context.Context, input []byte, longRunning bool) ([]byte, error) {
	if longRunning && d.hostLock != nil {
		d.hostLock.Unlock()
		defer d.hostLock.Lock()
	}
	return d.handle.Command(ctx, input, longRunning)
}

// asBridgeError returns err as an *errors.Error, wrapping it if needed.
func asBridgeError(phase errors.Phase, err error) *errors.Error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e
	}
	return errors.Wrap(phase, errors.KindInvalidData, err, "")
}

// result asserts the concrete payload type of a response variant already
// matched against its command.
func result[T wire.Output](out wire.Output) T {
	v, ok := out.(T)
	if !ok {
		var want T
		errors.Violation(errors.DiscriminantMismatch("BackendOutput", want.Command(), out.Command()))
	}
	return v
}
