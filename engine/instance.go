package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	ankibridge "github.com/wippyai/anki-bridge"
	"github.com/wippyai/anki-bridge/errors"
)

// Instance is one engine module instance with one open backend. It
// implements ankibridge.Handle.
//
// Commands are serialized. A progress callback must not call back into the
// same Instance.
type Instance struct {
	engine    *WazeroEngine
	module    api.Module
	memory    api.Memory
	allocFn   api.Function
	commandFn api.Function
	closeFn   api.Function
	output    *zapio.Writer

	mu        sync.Mutex
	stackBuf  []uint64
	hostPanic any
	handle    uint32
	closed    bool

	cbMu     sync.Mutex
	callback ankibridge.ProgressFunc
}

var _ ankibridge.Handle = (*Instance)(nil)

type instanceKey struct{}

func newGuestWriter() *zapio.Writer {
	return &zapio.Writer{Log: Logger().Named("guest"), Level: zap.DebugLevel}
}

// open hands the init descriptor to bridge_open. Must be called before the
// Instance is shared.
func (i *Instance) open(ctx context.Context, init []byte) (uint32, error) {
	ctx = context.WithValue(ctx, instanceKey{}, i)
	ptr, err := i.write(ctx, init)
	if err != nil {
		return 0, err
	}
	res, err := i.module.ExportedFunction(ExportOpen).Call(ctx, uint64(ptr), uint64(len(init)))
	if err != nil {
		return 0, errors.Instantiation(fmt.Errorf("%s: %w", ExportOpen, err))
	}
	handle := uint32(res[0])
	if handle == 0 {
		return 0, errors.New(errors.PhaseEngine, errors.KindInstantiation).
			Detail("%s rejected the backend descriptor", ExportOpen).
			Build()
	}
	return handle, nil
}

// SetProgressCallback implements ankibridge.Handle.
func (i *Instance) SetProgressCallback(fn ankibridge.ProgressFunc) {
	i.cbMu.Lock()
	i.callback = fn
	i.cbMu.Unlock()
}

func (i *Instance) progressCallback() ankibridge.ProgressFunc {
	i.cbMu.Lock()
	defer i.cbMu.Unlock()
	return i.callback
}

// Command implements ankibridge.Handle. A panic raised by the progress
// callback aborts the guest call and is re-raised here.
func (i *Instance) Command(ctx context.Context, input []byte, longRunning bool) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, errors.Closed("engine instance")
	}

	ctx = context.WithValue(ctx, instanceKey{}, i)
	ptr, err := i.write(ctx, input)
	if err != nil {
		return nil, err
	}

	var long uint64
	if longRunning {
		long = 1
	}
	i.stackBuf[0] = uint64(i.handle)
	i.stackBuf[1] = uint64(ptr)
	i.stackBuf[2] = uint64(len(input))
	i.stackBuf[3] = long
	err = i.commandFn.CallWithStack(ctx, i.stackBuf[:4])

	if p := i.hostPanic; p != nil {
		i.hostPanic = nil
		panic(p)
	}
	if err != nil {
		if i.module.IsClosed() {
			i.closed = true
		}
		return nil, fmt.Errorf("%s: %w", ExportCommand, err)
	}

	outPtr, outLen := unpackResult(i.stackBuf[0])
	if outLen == 0 {
		return []byte{}, nil
	}
	out, ok := i.memory.Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("read response at 0x%x (len %d): out of bounds", outPtr, outLen)
	}
	return slices.Clone(out), nil
}

// write copies data into a guest buffer obtained from bridge_alloc. The
// guest owns the buffer from then on.
func (i *Instance) write(ctx context.Context, data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	i.stackBuf[0] = uint64(len(data))
	if err := i.allocFn.CallWithStack(ctx, i.stackBuf[:1]); err != nil {
		return 0, fmt.Errorf("%s(%d): %w", ExportAlloc, len(data), err)
	}
	ptr := uint32(i.stackBuf[0])
	if ptr == 0 {
		return 0, fmt.Errorf("%s(%d) returned null", ExportAlloc, len(data))
	}
	if !i.memory.Write(ptr, data) {
		return 0, fmt.Errorf("write %d bytes at 0x%x: out of bounds", len(data), ptr)
	}
	return ptr, nil
}

// Close implements ankibridge.Handle. It calls bridge_close when exported
// and releases the module instance.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	i.SetProgressCallback(nil)

	var firstErr error
	if i.closeFn != nil && !i.module.IsClosed() {
		i.stackBuf[0] = uint64(i.handle)
		if err := i.closeFn.CallWithStack(ctx, i.stackBuf[:1]); err != nil {
			firstErr = fmt.Errorf("%s: %w", ExportClose, err)
		}
	}
	if err := i.module.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	_ = i.output.Close()

	Logger().Debug("engine instance closed", zap.Uint32("handle", i.handle))
	return firstErr
}

// hostProgress implements bridge.progress(handle, ptr, len) -> continue.
// It routes the notification to the Instance running the current command.
func hostProgress(ctx context.Context, mod api.Module, stack []uint64) {
	handle, ptr, n := uint32(stack[0]), uint32(stack[1]), uint32(stack[2])
	stack[0] = 1

	inst, _ := ctx.Value(instanceKey{}).(*Instance)
	if inst == nil {
		Logger().Warn("progress reported outside a command", zap.Uint32("handle", handle))
		return
	}
	if handle != inst.handle && inst.handle != 0 {
		Logger().Warn("progress reported for another handle",
			zap.Uint32("handle", handle),
			zap.Uint32("current", inst.handle))
	}

	cb := inst.progressCallback()
	if cb == nil {
		return
	}
	view, ok := mod.Memory().Read(ptr, n)
	if !ok {
		panic(fmt.Errorf("read progress at 0x%x (len %d): out of bounds", ptr, n))
	}

	defer func() {
		if r := recover(); r != nil {
			inst.hostPanic = r
			panic(r)
		}
	}()
	if !cb(slices.Clone(view)) {
		stack[0] = 0
	}
}
