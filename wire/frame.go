package wire

import (
	"fmt"

	"github.com/wippyai/anki-bridge/errors"
)

// FrameKind identifies the role of a remote transport frame.
type FrameKind uint32

const (
	FrameOpen FrameKind = iota + 1
	FrameOpened
	FrameCommand
	FrameResponse
	FrameProgress
	FrameProgressReply
	FrameFailure
	FrameClose
)

var frameKindNames = [...]string{
	FrameOpen:          "open",
	FrameOpened:        "opened",
	FrameCommand:       "command",
	FrameResponse:      "response",
	FrameProgress:      "progress",
	FrameProgressReply: "progress_reply",
	FrameFailure:       "failure",
	FrameClose:         "close",
}

func (k FrameKind) String() string {
	if k > 0 && int(k) < len(frameKindNames) {
		return frameKindNames[k]
	}
	return fmt.Sprintf("frame(%d)", uint32(k))
}

// Frame is one websocket message of the remote engine transport.
//
// Wire layout:
//
//	1: uint64 id
//	2: uint32 kind
//	3: bytes  payload
//	4: bool   flag
//
// ID pairs a command with its response and a progress frame with its reply.
// Flag is the long-running hint on command frames and the continue signal
// on progress replies.
type Frame struct {
	Payload []byte
	ID      uint64
	Kind    FrameKind
	Flag    bool
}

func (m *Frame) Marshal() ([]byte, error) {
	if m.Kind == 0 || int(m.Kind) >= len(frameKindNames) {
		return nil, errors.UnknownDiscriminant(errors.PhaseEncode, "Frame", uint32(m.Kind))
	}
	var b []byte
	b = appendVarint(b, 1, m.ID)
	b = appendVarint(b, 2, uint64(m.Kind))
	b = appendBytes(b, 3, m.Payload)
	b = appendBool(b, 4, m.Flag)
	return b, nil
}

func (m *Frame) Unmarshal(b []byte) error {
	const msg = "Frame"
	*m = Frame{}
	err := readFields(msg, b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.ID, err = f.asUint64(msg)
		case 2:
			var k uint32
			k, err = f.asUint32(msg)
			m.Kind = FrameKind(k)
		case 3:
			m.Payload, err = f.asBytes(msg)
		case 4:
			m.Flag, err = f.asBool(msg)
		}
		return err
	})
	if err != nil {
		return err
	}
	if m.Kind == 0 || int(m.Kind) >= len(frameKindNames) {
		return errors.UnknownDiscriminant(errors.PhaseDecode, msg, uint32(m.Kind))
	}
	return nil
}
