package enginetest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	ankibridge "github.com/wippyai/anki-bridge"
	"github.com/wippyai/anki-bridge/errors"
	"github.com/wippyai/anki-bridge/progress"
	"github.com/wippyai/anki-bridge/wire"
)

// HandlerFunc answers one decoded command. Returning a non-nil
// *wire.BackendError sends the error variant instead of out.
type HandlerFunc func(ctx context.Context, call *Call) (out wire.Output, failure *wire.BackendError)

// RawFunc answers an encoded command with encoded bytes, bypassing decoding.
// It lets tests send responses that no well-behaved engine would produce.
type RawFunc func(ctx context.Context, input []byte) ([]byte, error)

// Engine is an in-process ankibridge.Engine driven by per-command handlers.
type Engine struct {
	handlers map[wire.Command]HandlerFunc
	raw      RawFunc
	logger   *zap.Logger
	openErr  error

	mu       sync.Mutex
	sessions []*Session
}

// Option configures New.
type Option func(*Engine)

// WithHandler replaces the handler for cmd.
func WithHandler(cmd wire.Command, fn HandlerFunc) Option {
	return func(e *Engine) {
		e.handlers[cmd] = fn
	}
}

// WithRaw answers every command with fn instead of the handlers.
func WithRaw(fn RawFunc) Option {
	return func(e *Engine) {
		e.raw = fn
	}
}

// WithOpenError makes every Open fail with err.
func WithOpenError(err error) Option {
	return func(e *Engine) {
		e.openErr = err
	}
}

// WithLogger sets the logger used to trace commands.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New returns an Engine with the default handlers for every command.
func New(opts ...Option) *Engine {
	e := &Engine{
		handlers: DefaultHandlers(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open implements ankibridge.Engine. Each call starts an independent session
// with its own media folder.
func (e *Engine) Open(ctx context.Context, init []byte) (ankibridge.Handle, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	s := &Session{engine: e, media: newMediaFolder()}
	if err := s.init.Unmarshal(init); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()

	e.logger.Debug("session opened", zap.String("collection", s.init.CollectionPath))
	return s, nil
}

// Sessions returns every session opened so far, in order.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.sessions...)
}

// Session is one open engine instance. It implements ankibridge.Handle.
type Session struct {
	engine *Engine
	media  *mediaFolder
	init   wire.BackendInit

	mu       sync.Mutex
	callback ankibridge.ProgressFunc
	commands []wire.Command
	long     []bool
	closed   bool
}

// Init returns the descriptor the session was opened with.
func (s *Session) Init() wire.BackendInit {
	return s.init
}

// Commands returns the commands received so far, in order.
func (s *Session) Commands() []wire.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.Command(nil), s.commands...)
}

// LongRunning returns the long-running flag of each received command.
func (s *Session) LongRunning() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.long...)
}

// MediaFile returns the content stored under name.
func (s *Session) MediaFile(name string) ([]byte, bool) {
	return s.media.get(name)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SetProgressCallback implements ankibridge.Handle.
func (s *Session) SetProgressCallback(fn ankibridge.ProgressFunc) {
	s.mu.Lock()
	s.callback = fn
	s.mu.Unlock()
}

// Command implements ankibridge.Handle.
func (s *Session) Command(ctx context.Context, input []byte, longRunning bool) ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.Closed("engine session")
	}
	s.mu.Unlock()

	if s.engine.raw != nil {
		s.record(0, longRunning)
		return s.engine.raw(ctx, input)
	}

	var in wire.BackendInput
	if err := in.Unmarshal(input); err != nil {
		return marshalFailure(wire.ErrorInvalidInput, err.Error())
	}
	cmd := in.Input.Command()
	s.record(cmd, longRunning)

	h, ok := s.engine.handlers[cmd]
	if !ok {
		return marshalFailure(wire.ErrorInvalidInput, fmt.Sprintf("unsupported command %s", cmd))
	}

	call := &Call{Input: in.Input, LongRunning: longRunning, session: s}
	out, failure := h(ctx, call)
	s.engine.logger.Debug("command handled",
		zap.Stringer("command", cmd),
		zap.Bool("failed", failure != nil))

	if failure != nil {
		return (&wire.BackendOutput{Error: failure}).Marshal()
	}
	return (&wire.BackendOutput{Result: out}).Marshal()
}

// Close implements ankibridge.Handle.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.callback = nil
	return nil
}

func (s *Session) record(cmd wire.Command, longRunning bool) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.long = append(s.long, longRunning)
	s.mu.Unlock()
}

func marshalFailure(kind wire.ErrorKind, info string) ([]byte, error) {
	return (&wire.BackendOutput{Error: &wire.BackendError{Kind: kind, Info: info}}).Marshal()
}

// Call is one command being handled.
type Call struct {
	Input       wire.Input
	LongRunning bool
	session     *Session
}

// Session returns the session the command was sent to.
func (c *Call) Session() *Session {
	return c.session
}

// Progress reports ev to the host and returns its verdict. Without a
// registered callback the verdict is true.
func (c *Call) Progress(ev progress.Event) bool {
	raw, err := progress.Encode(ev)
	if err != nil {
		panic(err)
	}
	return c.RawProgress(raw)
}

// RawProgress reports an already encoded Progress message.
func (c *Call) RawProgress(raw []byte) bool {
	c.session.mu.Lock()
	cb := c.session.callback
	c.session.mu.Unlock()
	if cb == nil {
		return true
	}
	return cb(raw)
}

// Failure builds an error response of the given kind.
func Failure(kind wire.ErrorKind, info string) *wire.BackendError {
	return &wire.BackendError{Kind: kind, Info: info}
}
