package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/anki-bridge/errors"
)

// Command identifies an engine operation. Its value is the field number of the
// operation's variant in both BackendInput and BackendOutput.
type Command protowire.Number

const (
	CommandTemplateRequirements      Command = 16
	CommandSchedTimingToday          Command = 17
	CommandRenderCard                Command = 21
	CommandLocalMinutesWest          Command = 22
	CommandStripAVTags               Command = 23
	CommandExtractAVTags             Command = 24
	CommandExpandClozesToRevealLatex Command = 25
	CommandAddFileToMediaFolder      Command = 26
	CommandSyncMedia                 Command = 27
)

// fieldError is the BackendOutput field carrying a BackendError.
const fieldError protowire.Number = 2047

var commandNames = map[Command]string{
	CommandTemplateRequirements:      "template_requirements",
	CommandSchedTimingToday:          "sched_timing_today",
	CommandRenderCard:                "render_card",
	CommandLocalMinutesWest:          "local_minutes_west",
	CommandStripAVTags:               "strip_av_tags",
	CommandExtractAVTags:             "extract_av_tags",
	CommandExpandClozesToRevealLatex: "expand_clozes_to_reveal_latex",
	CommandAddFileToMediaFolder:      "add_file_to_media_folder",
	CommandSyncMedia:                 "sync_media",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int32(c))
}

// Known reports whether this version of the protocol defines c.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// BackendInit is the descriptor passed to the engine's open call.
//
// Wire layout:
//
//	1: string collection_path
//	2: string media_folder_path
//	3: string media_db_path
type BackendInit struct {
	CollectionPath  string
	MediaFolderPath string
	MediaDBPath     string
}

func (m *BackendInit) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.CollectionPath)
	b = appendString(b, 2, m.MediaFolderPath)
	b = appendString(b, 3, m.MediaDBPath)
	return b, nil
}

func (m *BackendInit) Unmarshal(b []byte) error {
	const msg = "BackendInit"
	*m = BackendInit{}
	return readFields(msg, b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.CollectionPath, err = f.asString(msg)
		case 2:
			m.MediaFolderPath, err = f.asString(msg)
		case 3:
			m.MediaDBPath, err = f.asString(msg)
		}
		return err
	})
}

// Input is one variant of the command envelope. Implementations are the
// per-command *In types in this package.
type Input interface {
	Command() Command
	appendInput(b []byte) ([]byte, error)
}

// BackendInput is the command envelope. Exactly one variant is carried.
type BackendInput struct {
	Input Input
}

func (m *BackendInput) Marshal() ([]byte, error) {
	if m.Input == nil {
		return nil, errors.TagCount(errors.PhaseEncode, "BackendInput", 0)
	}
	return m.Input.appendInput(nil)
}

func (m *BackendInput) Unmarshal(b []byte) error {
	u := unionReader{msg: "BackendInput"}
	*m = BackendInput{}
	err := readFields(u.msg, b, func(f field) error {
		u.seen()
		in, err := decodeInput(u.msg, f)
		if err != nil {
			return err
		}
		if in == nil {
			return u.unknown(f)
		}
		m.Input = in
		return nil
	})
	if err != nil {
		return err
	}
	return u.done()
}

func decodeInput(msg string, f field) (Input, error) {
	switch Command(f.num) {
	case CommandTemplateRequirements:
		return decodeEmbedded(msg, f, &TemplateRequirementsIn{})
	case CommandSchedTimingToday:
		return decodeEmbedded(msg, f, &SchedTimingTodayIn{})
	case CommandRenderCard:
		return decodeEmbedded(msg, f, &RenderCardIn{})
	case CommandLocalMinutesWest:
		v, err := f.asInt64(msg)
		return LocalMinutesWestIn(v), err
	case CommandStripAVTags:
		v, err := f.asString(msg)
		return StripAVTagsIn(v), err
	case CommandExtractAVTags:
		return decodeEmbedded(msg, f, &ExtractAVTagsIn{})
	case CommandExpandClozesToRevealLatex:
		v, err := f.asString(msg)
		return ExpandClozesIn(v), err
	case CommandAddFileToMediaFolder:
		return decodeEmbedded(msg, f, &AddFileToMediaFolderIn{})
	case CommandSyncMedia:
		return decodeEmbedded(msg, f, &SyncMediaIn{})
	}
	return nil, nil
}

// Output is one success variant of the response envelope.
type Output interface {
	Command() Command
	appendOutput(b []byte) ([]byte, error)
}

// BackendOutput is the response envelope: either a command-specific Result or
// an Error, never both.
type BackendOutput struct {
	Result Output
	Error  *BackendError
}

func (m *BackendOutput) Marshal() ([]byte, error) {
	switch {
	case m.Result != nil && m.Error != nil:
		return nil, errors.TagCount(errors.PhaseEncode, "BackendOutput", 2)
	case m.Error != nil:
		body, err := m.Error.Marshal()
		if err != nil {
			return nil, err
		}
		return appendEmbedded(nil, fieldError, body), nil
	case m.Result != nil:
		return m.Result.appendOutput(nil)
	}
	return nil, errors.TagCount(errors.PhaseEncode, "BackendOutput", 0)
}

func (m *BackendOutput) Unmarshal(b []byte) error {
	u := unionReader{msg: "BackendOutput"}
	*m = BackendOutput{}
	err := readFields(u.msg, b, func(f field) error {
		u.seen()
		if f.num == fieldError {
			be := &BackendError{}
			if _, err := decodeEmbedded(u.msg, f, be); err != nil {
				return err
			}
			m.Error = be
			return nil
		}
		out, err := decodeOutput(u.msg, f)
		if err != nil {
			return err
		}
		if out == nil {
			return u.unknown(f)
		}
		m.Result = out
		return nil
	})
	if err != nil {
		return err
	}
	return u.done()
}

func decodeOutput(msg string, f field) (Output, error) {
	switch Command(f.num) {
	case CommandTemplateRequirements:
		return decodeEmbedded(msg, f, &TemplateRequirementsOut{})
	case CommandSchedTimingToday:
		return decodeEmbedded(msg, f, &SchedTimingTodayOut{})
	case CommandRenderCard:
		return decodeEmbedded(msg, f, &RenderCardOut{})
	case CommandLocalMinutesWest:
		v, err := f.asSint32(msg)
		return LocalMinutesWestOut(v), err
	case CommandStripAVTags:
		v, err := f.asString(msg)
		return StripAVTagsOut(v), err
	case CommandExtractAVTags:
		return decodeEmbedded(msg, f, &ExtractAVTagsOut{})
	case CommandExpandClozesToRevealLatex:
		v, err := f.asString(msg)
		return ExpandClozesOut(v), err
	case CommandAddFileToMediaFolder:
		v, err := f.asString(msg)
		return AddFileToMediaFolderOut(v), err
	case CommandSyncMedia:
		if _, err := f.asMessage(msg); err != nil {
			return nil, err
		}
		return SyncMediaOut{}, nil
	}
	return nil, nil
}

type unmarshaler interface {
	Unmarshal(b []byte) error
}

// decodeEmbedded unmarshals the embedded message in f into m and returns m.
func decodeEmbedded[T unmarshaler](msg string, f field, m T) (T, error) {
	body, err := f.asMessage(msg)
	if err != nil {
		return m, err
	}
	if err := m.Unmarshal(body); err != nil {
		return m, err
	}
	return m, nil
}
