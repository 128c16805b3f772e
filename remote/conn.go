package remote

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wippyai/anki-bridge/errors"
	"github.com/wippyai/anki-bridge/wire"
)

// SessionHeader carries the client-chosen session id on the upgrade request.
const SessionHeader = "X-Anki-Bridge-Session"

const (
	maxFrameSize = 64 << 20
	writeTimeout = 10 * time.Second
)

// frameConn wraps a *websocket.Conn with mutex-guarded frame writes.
type frameConn struct {
	c *websocket.Conn

	mu     sync.Mutex // guards writes
	closed bool
}

func newFrameConn(c *websocket.Conn) *frameConn {
	c.SetReadLimit(maxFrameSize)
	return &frameConn{c: c}
}

// read returns the next frame. Only one goroutine may read.
func (fc *frameConn) read() (*wire.Frame, error) {
	typ, data, err := fc.c.ReadMessage()
	if err != nil {
		return nil, err
	}
	if typ != websocket.BinaryMessage {
		return nil, errors.InvalidData(errors.PhaseTransport, nil, fmt.Sprintf("unexpected websocket message type %d", typ))
	}
	var f wire.Frame
	if err := f.Unmarshal(data); err != nil {
		return nil, err
	}
	return &f, nil
}

// send writes f as one binary message.
func (fc *frameConn) send(f *wire.Frame) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.closed {
		return errors.Closed("websocket connection")
	}
	_ = fc.c.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := fc.c.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return errors.Transport("write "+f.Kind.String()+" frame", err)
	}
	return nil
}

// close sends a normal closure message and closes the connection.
func (fc *frameConn) close() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.closed {
		return
	}
	fc.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = fc.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = fc.c.Close()
}
