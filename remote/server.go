package remote

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	ankibridge "github.com/wippyai/anki-bridge"
	"github.com/wippyai/anki-bridge/wire"
)

// Handler serves an ankibridge.Engine over websocket. Every connection
// opens its own engine handle.
type Handler struct {
	engine   ankibridge.Engine
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns an http.Handler serving eng. A nil logger uses the
// package logger.
func NewHandler(eng ankibridge.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = Logger()
	}
	return &Handler{
		engine: eng,
		logger: logger,
		upgrader: websocket.Upgrader{
			// Clients are local tools, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := newFrameConn(c)
	defer conn.close()

	sc := &serverConn{
		conn:    conn,
		logger:  h.logger.With(zap.String("session", r.Header.Get(SessionHeader))),
		wake:    make(chan struct{}, 1),
		replies: make(chan bool, 1),
	}
	sc.serve(r.Context(), h.engine)
}

// serverConn is the server side of one session. The read loop queues
// commands for a single worker and feeds progress replies to the blocked
// callback. It never blocks on the worker, so replies are always read.
type serverConn struct {
	conn    *frameConn
	logger  *zap.Logger
	wake    chan struct{}
	replies chan bool

	mu      sync.Mutex
	queue   []*wire.Frame
	current uint64
}

func (sc *serverConn) serve(ctx context.Context, eng ankibridge.Engine) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first, err := sc.conn.read()
	if err != nil {
		sc.logger.Debug("read open frame failed", zap.Error(err))
		return
	}
	if first.Kind != wire.FrameOpen {
		sc.fail(0, fmt.Errorf("expected open frame, got %s", first.Kind))
		return
	}
	handle, err := eng.Open(ctx, first.Payload)
	if err != nil {
		sc.logger.Warn("engine open failed", zap.Error(err))
		sc.fail(0, err)
		return
	}
	defer func() {
		if err := handle.Close(context.WithoutCancel(ctx)); err != nil {
			sc.logger.Warn("engine close failed", zap.Error(err))
		}
	}()
	handle.SetProgressCallback(func(p []byte) bool {
		return sc.progress(ctx, p)
	})

	if err := sc.conn.send(&wire.Frame{Kind: wire.FrameOpened}); err != nil {
		return
	}
	sc.logger.Debug("remote session opened")

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for {
			f, ok := sc.next(ctx)
			if !ok {
				return
			}
			sc.run(ctx, handle, f)
		}
	}()

	sc.readLoop()
	cancel()
	<-workerDone
	sc.logger.Debug("remote session closed")
}

func (sc *serverConn) readLoop() {
	for {
		f, err := sc.conn.read()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sc.logger.Debug("session read failed", zap.Error(err))
			}
			return
		}
		switch f.Kind {
		case wire.FrameCommand:
			sc.enqueue(f)
		case wire.FrameProgressReply:
			sc.mu.Lock()
			current := sc.current
			sc.mu.Unlock()
			if f.ID != current {
				sc.logger.Warn("progress reply for another command", zap.Uint64("id", f.ID), zap.Uint64("current", current))
				continue
			}
			select {
			case sc.replies <- f.Flag:
			default:
				sc.logger.Warn("unsolicited progress reply", zap.Uint64("id", f.ID))
			}
		case wire.FrameClose:
			return
		default:
			sc.logger.Warn("unexpected frame", zap.Stringer("kind", f.Kind))
		}
	}
}

func (sc *serverConn) enqueue(f *wire.Frame) {
	sc.mu.Lock()
	sc.queue = append(sc.queue, f)
	sc.mu.Unlock()
	select {
	case sc.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest queued command, waiting for one until ctx is done.
func (sc *serverConn) next(ctx context.Context) (*wire.Frame, bool) {
	for {
		sc.mu.Lock()
		if len(sc.queue) > 0 {
			f := sc.queue[0]
			sc.queue[0] = nil
			sc.queue = sc.queue[1:]
			sc.mu.Unlock()
			return f, true
		}
		sc.mu.Unlock()

		select {
		case <-sc.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// run executes one command on the engine and sends its outcome.
func (sc *serverConn) run(ctx context.Context, handle ankibridge.Handle, f *wire.Frame) {
	sc.mu.Lock()
	sc.current = f.ID
	sc.mu.Unlock()

	out, err := sc.command(ctx, handle, f)
	if err != nil {
		sc.fail(f.ID, err)
		return
	}
	if err := sc.conn.send(&wire.Frame{ID: f.ID, Kind: wire.FrameResponse, Payload: out}); err != nil {
		sc.logger.Warn("send response failed", zap.Error(err))
	}
}

func (sc *serverConn) command(ctx context.Context, handle ankibridge.Handle, f *wire.Frame) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			sc.logger.Error("engine command panicked", zap.Any("panic", r))
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return handle.Command(ctx, f.Payload, f.Flag)
}

// progress forwards one notification and blocks until the client replies.
func (sc *serverConn) progress(ctx context.Context, p []byte) bool {
	sc.mu.Lock()
	id := sc.current
	sc.mu.Unlock()

	if err := sc.conn.send(&wire.Frame{ID: id, Kind: wire.FrameProgress, Payload: p}); err != nil {
		return false
	}
	select {
	case keepGoing := <-sc.replies:
		return keepGoing
	case <-ctx.Done():
		return false
	}
}

func (sc *serverConn) fail(id uint64, err error) {
	if sendErr := sc.conn.send(&wire.Frame{ID: id, Kind: wire.FrameFailure, Payload: []byte(err.Error())}); sendErr != nil {
		sc.logger.Debug("send failure failed", zap.Error(sendErr))
	}
}
