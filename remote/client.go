package remote

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	ankibridge "github.com/wippyai/anki-bridge"
	"github.com/wippyai/anki-bridge/errors"
	"github.com/wippyai/anki-bridge/wire"
)

// Engine reaches an engine served by NewHandler. It implements
// ankibridge.Engine; each Open is one websocket connection.
type Engine struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger
}

var _ ankibridge.Engine = (*Engine)(nil)

// Dial checks rawURL and returns an Engine for it. No connection is made
// until Open.
func Dial(ctx context.Context, rawURL string) (*Engine, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Transport("parse url", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.New(errors.PhaseTransport, errors.KindInvalidInput).
			Detail("url %q: scheme must be ws or wss", rawURL).
			Build()
	}
	return &Engine{
		url:    u.String(),
		dialer: websocket.DefaultDialer,
		logger: Logger(),
	}, nil
}

// Open connects, sends init and waits for the server to open the engine.
func (e *Engine) Open(ctx context.Context, init []byte) (ankibridge.Handle, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Transport("session id", err)
	}
	header := http.Header{}
	header.Set(SessionHeader, id.String())

	c, _, err := e.dialer.DialContext(ctx, e.url, header)
	if err != nil {
		return nil, errors.Transport("dial "+e.url, err)
	}
	conn := newFrameConn(c)
	log := e.logger.With(zap.String("session", id.String()))

	if err := conn.send(&wire.Frame{Kind: wire.FrameOpen, Payload: init}); err != nil {
		conn.close()
		return nil, err
	}
	reply, err := conn.read()
	if err != nil {
		conn.close()
		return nil, errors.Transport("read open reply", err)
	}
	switch reply.Kind {
	case wire.FrameOpened:
	case wire.FrameFailure:
		conn.close()
		return nil, errors.EngineCall("remote open", remoteFailure(reply))
	default:
		conn.close()
		return nil, unexpectedFrame(reply)
	}

	s := &Session{
		id:      id,
		conn:    conn,
		logger:  log,
		pending: make(map[uint64]chan result),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	log.Debug("remote session opened")
	return s, nil
}

type result struct {
	payload []byte
	err     error
	panicV  any
}

func (r result) unwrap() ([]byte, error) {
	if r.panicV != nil {
		panic(r.panicV)
	}
	return r.payload, r.err
}

// Session is one open remote engine. It implements ankibridge.Handle.
type Session struct {
	id     uuid.UUID
	conn   *frameConn
	logger *zap.Logger
	nextID atomic.Uint64

	mu       sync.Mutex
	pending  map[uint64]chan result
	callback ankibridge.ProgressFunc
	closed   bool

	done    chan struct{}
	readErr error
}

var _ ankibridge.Handle = (*Session)(nil)

// ID returns the session id sent to the server.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// SetProgressCallback implements ankibridge.Handle.
func (s *Session) SetProgressCallback(fn ankibridge.ProgressFunc) {
	s.mu.Lock()
	s.callback = fn
	s.mu.Unlock()
}

// Command implements ankibridge.Handle. Cancelling ctx abandons the command;
// the engine is not interrupted.
func (s *Session) Command(ctx context.Context, input []byte, longRunning bool) ([]byte, error) {
	id := s.nextID.Add(1)
	ch := make(chan result, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.Closed("remote session")
	}
	s.pending[id] = ch
	s.mu.Unlock()

	err := s.conn.send(&wire.Frame{ID: id, Kind: wire.FrameCommand, Payload: input, Flag: longRunning})
	if err != nil {
		s.forget(id)
		return nil, err
	}

	return s.await(ctx, id, ch)
}

// await waits for the outcome of command id. A result delivered before the
// connection dropped wins over the transport error.
func (s *Session) await(ctx context.Context, id uint64, ch <-chan result) ([]byte, error) {
	select {
	case r := <-ch:
		return r.unwrap()
	case <-ctx.Done():
		s.forget(id)
		return nil, errors.Transport("command abandoned", ctx.Err())
	case <-s.done:
		select {
		case r := <-ch:
			return r.unwrap()
		default:
		}
		s.forget(id)
		return nil, errors.Transport("connection lost", s.readErr)
	}
}

func (s *Session) forget(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Session) complete(id uint64, r result) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("dropping reply for unknown command", zap.Uint64("id", id))
		return
	}
	ch <- r
}

func (s *Session) readLoop() {
	defer close(s.done)
	for {
		f, err := s.conn.read()
		if err != nil {
			s.readErr = err
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Warn("remote session read failed", zap.Error(err))
			}
			return
		}

		switch f.Kind {
		case wire.FrameResponse:
			s.complete(f.ID, result{payload: f.Payload})
		case wire.FrameFailure:
			s.complete(f.ID, result{err: remoteFailure(f)})
		case wire.FrameProgress:
			s.progress(f)
		default:
			s.logger.Warn("unexpected frame", zap.Stringer("kind", f.Kind), zap.Uint64("id", f.ID))
		}
	}
}

// progress runs the callback and replies with its verdict. A panic in the
// callback stops the engine and is re-raised by the waiting Command.
// Notifications for commands nobody waits on any more are answered with
// stop and never reach the callback.
func (s *Session) progress(f *wire.Frame) {
	s.mu.Lock()
	cb := s.callback
	_, waiting := s.pending[f.ID]
	s.mu.Unlock()

	keepGoing := waiting
	if !waiting {
		s.logger.Debug("stopping abandoned command", zap.Uint64("id", f.ID))
	}
	if waiting && cb != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					keepGoing = false
					s.complete(f.ID, result{panicV: r})
				}
			}()
			keepGoing = cb(f.Payload)
		}()
	}

	if err := s.conn.send(&wire.Frame{ID: f.ID, Kind: wire.FrameProgressReply, Flag: keepGoing}); err != nil {
		s.logger.Warn("progress reply failed", zap.Error(err))
	}
}

// Close implements ankibridge.Handle. It asks the server to close the
// engine and waits for the connection to shut down.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.callback = nil
	s.mu.Unlock()

	sendErr := s.conn.send(&wire.Frame{Kind: wire.FrameClose})
	if sendErr == nil {
		// The server closes the connection once the engine is closed.
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}
	s.conn.close()
	<-s.done

	s.logger.Debug("remote session closed")
	return nil
}

func remoteFailure(f *wire.Frame) error {
	return errors.New(errors.PhaseTransport, errors.KindEngineCall).
		Detail("remote: %s", f.Payload).
		Build()
}

func unexpectedFrame(f *wire.Frame) error {
	return errors.UnknownDiscriminant(errors.PhaseTransport, "Frame", f.Kind.String())
}
