package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// TemplateRequirementsIn asks which fields each card template needs.
//
// Wire layout:
//
//	1: repeated string             template_front
//	2: map<string, uint32>         field_names_to_ordinals
type TemplateRequirementsIn struct {
	FieldNamesToOrdinals map[string]uint32
	TemplateFront        []string
}

func (m *TemplateRequirementsIn) Command() Command { return CommandTemplateRequirements }

func (m *TemplateRequirementsIn) Marshal() ([]byte, error) {
	var b []byte
	b = appendStrings(b, 1, m.TemplateFront)
	b = appendStringUint32Map(b, 2, m.FieldNamesToOrdinals)
	return b, nil
}

func (m *TemplateRequirementsIn) Unmarshal(b []byte) error {
	const msg = "TemplateRequirementsIn"
	*m = TemplateRequirementsIn{}
	return readFields(msg, b, func(f field) error {
		switch f.num {
		case 1:
			s, err := f.asString(msg)
			if err != nil {
				return err
			}
			m.TemplateFront = append(m.TemplateFront, s)
		case 2:
			entry, err := f.asMessage(msg)
			if err != nil {
				return err
			}
			var ord uint32
			key, err := readMapEntry(msg, entry, func(vf field) error {
				var err error
				ord, err = vf.asUint32(msg)
				return err
			})
			if err != nil {
				return err
			}
			if m.FieldNamesToOrdinals == nil {
				m.FieldNamesToOrdinals = make(map[string]uint32)
			}
			m.FieldNamesToOrdinals[key] = ord
		}
		return nil
	})
}

func (m *TemplateRequirementsIn) appendInput(b []byte) ([]byte, error) {
	return appendVariant(b, m.Command(), m)
}

// TemplateRequirementsOut carries one requirement per template, in template order.
//
// Wire layout:
//
//	1: repeated TemplateRequirement requirements
type TemplateRequirementsOut struct {
	Requirements []*TemplateRequirement
}

func (m *TemplateRequirementsOut) Command() Command { return CommandTemplateRequirements }

func (m *TemplateRequirementsOut) Marshal() ([]byte, error) {
	var b []byte
	for _, r := range m.Requirements {
		body, err := r.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendEmbedded(b, 1, body)
	}
	return b, nil
}

func (m *TemplateRequirementsOut) Unmarshal(b []byte) error {
	const msg = "TemplateRequirementsOut"
	*m = TemplateRequirementsOut{}
	return readFields(msg, b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		r, err := decodeEmbedded(msg, f, &TemplateRequirement{})
		if err != nil {
			return err
		}
		m.Requirements = append(m.Requirements, r)
		return nil
	})
}

func (m *TemplateRequirementsOut) appendOutput(b []byte) ([]byte, error) {
	return appendVariant(b, m.Command(), m)
}

// SchedTimingTodayIn carries collection creation and current time, each with
// its local UTC offset in minutes west, plus the day rollover hour.
//
// Wire layout:
//
//	1: int64  created_secs
//	2: sint32 created_mins_west
//	3: int64  now_secs
//	4: sint32 now_mins_west
//	5: sint32 rollover_hour
type SchedTimingTodayIn struct {
	CreatedSecs     int64
	NowSecs         int64
	CreatedMinsWest int32
	NowMinsWest     int32
	RolloverHour    int32
}

func (m *SchedTimingTodayIn) Command() Command { return CommandSchedTimingToday }

func (m *SchedTimingTodayIn) Marshal() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(m.CreatedSecs))
	b = appendSint32(b, 2, m.CreatedMinsWest)
	b = appendVarint(b, 3, uint64(m.NowSecs))
	b = appendSint32(b, 4, m.NowMinsWest)
	b = appendSint32(b, 5, m.RolloverHour)
	return b, nil
}

func (m *SchedTimingTodayIn) Unmarshal(b []byte) error {
	const msg = "SchedTimingTodayIn"
	*m = SchedTimingTodayIn{}
	return readFields(msg, b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.CreatedSecs, err = f.asInt64(msg)
		case 2:
			m.CreatedMinsWest, err = f.asSint32(msg)
		case 3:
			m.NowSecs, err = f.asInt64(msg)
		case 4:
			m.NowMinsWest, err = f.asSint32(msg)
		case 5:
			m.RolloverHour, err = f.asSint32(msg)
		}
		return err
	})
}

func (m *SchedTimingTodayIn) appendInput(b []byte) ([]byte, error) {
	return appendVariant(b, m.Command(), m)
}

// SchedTimingTodayOut is the engine's timing breakdown. The bridge passes it
// through untouched.
//
// Wire layout:
//
//	1: uint32 days_elapsed
//	2: int64  next_day_at
type SchedTimingTodayOut struct {
	NextDayAt   int64
	DaysElapsed uint32
}

func (m *SchedTimingTodayOut) Command() Command { return CommandSchedTimingToday }

func (m *SchedTimingTodayOut) Marshal() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(m.DaysElapsed))
	b = appendVarint(b, 2, uint64(m.NextDayAt))
	return b, nil
}

func (m *SchedTimingTodayOut) Unmarshal(b []byte) error {
	const msg = "SchedTimingTodayOut"
	*m = SchedTimingTodayOut{}
	return readFields(msg, b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.DaysElapsed, err = f.asUint32(msg)
		case 2:
			m.NextDayAt, err = f.asInt64(msg)
		}
		return err
	})
}

func (m *SchedTimingTodayOut) appendOutput(b []byte) ([]byte, error) {
	return appendVariant(b, m.Command(), m)
}

// RenderCardIn asks the engine to render both sides of one card.
//
// Wire layout:
//
//	1: string              question_template
//	2: string              answer_template
//	3: map<string, string> fields
//	4: int32               card_ordinal
type RenderCardIn struct {
	Fields           map[string]string
	QuestionTemplate string
	AnswerTemplate   string
	CardOrdinal      int32
}

func (m *RenderCardIn) Command() Command { return CommandRenderCard }

func (m *RenderCardIn) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.QuestionTemplate)
	b = appendString(b, 2, m.AnswerTemplate)
	b = appendStringStringMap(b, 3, m.Fields)
	b = appendInt32(b, 4, m.CardOrdinal)
	return b, nil
}

func (m *RenderCardIn) Unmarshal(b []byte) error {
	const msg = "RenderCardIn"
	*m = RenderCardIn{}
	return readFields(msg, b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.QuestionTemplate, err = f.asString(msg)
		case 2:
			m.AnswerTemplate, err = f.asString(msg)
		case 3:
			var entry []byte
			if entry, err = f.asMessage(msg); err != nil {
				return err
			}
			var val string
			key, err := readMapEntry(msg, entry, func(vf field) error {
				var err error
				val, err = vf.asString(msg)
				return err
			})
			if err != nil {
				return err
			}
			if m.Fields == nil {
				m.Fields = make(map[string]string)
			}
			m.Fields[key] = val
		case 4:
			m.CardOrdinal, err = f.asInt32(msg)
		}
		return err
	})
}

func (m *RenderCardIn) appendInput(b []byte) ([]byte, error) {
	return appendVariant(b, m.Command(), m)
}

// RenderCardOut carries the rendered node sequences of both card sides.
//
// Wire layout:
//
//	1: repeated RenderedTemplateNode question_nodes
//	2: repeated RenderedTemplateNode answer_nodes
type RenderCardOut struct {
	QuestionNodes []*RenderedTemplateNode
	AnswerNodes   []*RenderedTemplateNode
}

func (m *RenderCardOut) Command() Command { return CommandRenderCard }

func (m *RenderCardOut) Marshal() ([]byte, error) {
	var b []byte
	var err error
	if b, err = appendNodes(b, 1, m.QuestionNodes); err != nil {
		return nil, err
	}
	return appendNodes(b, 2, m.AnswerNodes)
}

func appendNodes(b []byte, num protowire.Number, nodes []*RenderedTemplateNode) ([]byte, error) {
	for _, n := range nodes {
		body, err := n.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendEmbedded(b, num, body)
	}
	return b, nil
}

func (m *RenderCardOut) Unmarshal(b []byte) error {
	const msg = "RenderCardOut"
	*m = RenderCardOut{}
	return readFields(msg, b, func(f field) error {
		switch f.num {
		case 1, 2:
			n, err := decodeEmbedded(msg, f, &RenderedTemplateNode{})
			if err != nil {
				return err
			}
			if f.num == 1 {
				m.QuestionNodes = append(m.QuestionNodes, n)
			} else {
				m.AnswerNodes = append(m.AnswerNodes, n)
			}
		}
		return nil
	})
}

func (m *RenderCardOut) appendOutput(b []byte) ([]byte, error) {
	return appendVariant(b, m.Command(), m)
}

// LocalMinutesWestIn is a unix timestamp in seconds.
type LocalMinutesWestIn int64

func (v LocalMinutesWestIn) Command() Command { return CommandLocalMinutesWest }

func (v LocalMinutesWestIn) appendInput(b []byte) ([]byte, error) {
	return appendVarintAlways(b, protowire.Number(v.Command()), uint64(v)), nil
}

// LocalMinutesWestOut is the UTC offset in minutes west of UTC.
type LocalMinutesWestOut int32

func (v LocalMinutesWestOut) Command() Command { return CommandLocalMinutesWest }

func (v LocalMinutesWestOut) appendOutput(b []byte) ([]byte, error) {
	return appendVarintAlways(b, protowire.Number(v.Command()), protowire.EncodeZigZag(int64(v))), nil
}

// StripAVTagsIn is text whose audio/video tags should be removed.
type StripAVTagsIn string

func (v StripAVTagsIn) Command() Command { return CommandStripAVTags }

func (v StripAVTagsIn) appendInput(b []byte) ([]byte, error) {
	return appendStringAlways(b, protowire.Number(v.Command()), string(v)), nil
}

// StripAVTagsOut is the text with audio/video tags removed.
type StripAVTagsOut string

func (v StripAVTagsOut) Command() Command { return CommandStripAVTags }

func (v StripAVTagsOut) appendOutput(b []byte) ([]byte, error) {
	return appendStringAlways(b, protowire.Number(v.Command()), string(v)), nil
}

// ExtractAVTagsIn asks for the audio/video tags of one card side.
//
// Wire layout:
//
//	1: string text
//	2: bool   question_side
type ExtractAVTagsIn struct {
	Text         string
	QuestionSide bool
}

func (m *ExtractAVTagsIn) Command() Command { return CommandExtractAVTags }

func (m *ExtractAVTagsIn) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.Text)
	b = appendBool(b, 2, m.QuestionSide)
	return b, nil
}

func (m *ExtractAVTagsIn) Unmarshal(b []byte) error {
	const msg = "ExtractAVTagsIn"
	*m = ExtractAVTagsIn{}
	return readFields(msg, b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.Text, err = f.asString(msg)
		case 2:
			m.QuestionSide, err = f.asBool(msg)
		}
		return err
	})
}

func (m *ExtractAVTagsIn) appendInput(b []byte) ([]byte, error) {
	return appendVariant(b, m.Command(), m)
}

// ExtractAVTagsOut is the text with tags replaced by placeholders, and the
// tags in order of appearance.
//
// Wire layout:
//
//	1: string         text
//	2: repeated AVTag av_tags
type ExtractAVTagsOut struct {
	Text   string
	AVTags []*AVTag
}

func (m *ExtractAVTagsOut) Command() Command { return CommandExtractAVTags }

func (m *ExtractAVTagsOut) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.Text)
	for _, tag := range m.AVTags {
		body, err := tag.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendEmbedded(b, 2, body)
	}
	return b, nil
}

func (m *ExtractAVTagsOut) Unmarshal(b []byte) error {
	const msg = "ExtractAVTagsOut"
	*m = ExtractAVTagsOut{}
	return readFields(msg, b, func(f field) error {
		switch f.num {
		case 1:
			var err error
			m.Text, err = f.asString(msg)
			return err
		case 2:
			tag, err := decodeEmbedded(msg, f, &AVTag{})
			if err != nil {
				return err
			}
			m.AVTags = append(m.AVTags, tag)
		}
		return nil
	})
}

func (m *ExtractAVTagsOut) appendOutput(b []byte) ([]byte, error) {
	return appendVariant(b, m.Command(), m)
}

// ExpandClozesIn is cloze text to expand for LaTeX preview.
type ExpandClozesIn string

func (v ExpandClozesIn) Command() Command { return CommandExpandClozesToRevealLatex }

func (v ExpandClozesIn) appendInput(b []byte) ([]byte, error) {
	return appendStringAlways(b, protowire.Number(v.Command()), string(v)), nil
}

// ExpandClozesOut is the expanded text.
type ExpandClozesOut string

func (v ExpandClozesOut) Command() Command { return CommandExpandClozesToRevealLatex }

func (v ExpandClozesOut) appendOutput(b []byte) ([]byte, error) {
	return appendStringAlways(b, protowire.Number(v.Command()), string(v)), nil
}

// AddFileToMediaFolderIn stores data in the media folder under a name
// derived from DesiredName.
//
// Wire layout:
//
//	1: string desired_name
//	2: bytes  data
type AddFileToMediaFolderIn struct {
	DesiredName string
	Data        []byte
}

func (m *AddFileToMediaFolderIn) Command() Command { return CommandAddFileToMediaFolder }

func (m *AddFileToMediaFolderIn) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.DesiredName)
	b = appendBytes(b, 2, m.Data)
	return b, nil
}

func (m *AddFileToMediaFolderIn) Unmarshal(b []byte) error {
	const msg = "AddFileToMediaFolderIn"
	*m = AddFileToMediaFolderIn{}
	return readFields(msg, b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.DesiredName, err = f.asString(msg)
		case 2:
			m.Data, err = f.asBytes(msg)
		}
		return err
	})
}

func (m *AddFileToMediaFolderIn) appendInput(b []byte) ([]byte, error) {
	return appendVariant(b, m.Command(), m)
}

// AddFileToMediaFolderOut is the name the file was actually stored under.
type AddFileToMediaFolderOut string

func (v AddFileToMediaFolderOut) Command() Command { return CommandAddFileToMediaFolder }

func (v AddFileToMediaFolderOut) appendOutput(b []byte) ([]byte, error) {
	return appendStringAlways(b, protowire.Number(v.Command()), string(v)), nil
}

// SyncMediaIn starts a media sync against an AnkiWeb-compatible endpoint.
//
// Wire layout:
//
//	1: string hkey
//	2: string endpoint
//	3: string media_folder
//	4: string media_db
type SyncMediaIn struct {
	HKey        string
	Endpoint    string
	MediaFolder string
	MediaDB     string
}

func (m *SyncMediaIn) Command() Command { return CommandSyncMedia }

func (m *SyncMediaIn) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.HKey)
	b = appendString(b, 2, m.Endpoint)
	b = appendString(b, 3, m.MediaFolder)
	b = appendString(b, 4, m.MediaDB)
	return b, nil
}

func (m *SyncMediaIn) Unmarshal(b []byte) error {
	const msg = "SyncMediaIn"
	*m = SyncMediaIn{}
	return readFields(msg, b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.HKey, err = f.asString(msg)
		case 2:
			m.Endpoint, err = f.asString(msg)
		case 3:
			m.MediaFolder, err = f.asString(msg)
		case 4:
			m.MediaDB, err = f.asString(msg)
		}
		return err
	})
}

func (m *SyncMediaIn) appendInput(b []byte) ([]byte, error) {
	return appendVariant(b, m.Command(), m)
}

// SyncMediaOut is the empty success payload of a media sync.
type SyncMediaOut struct{}

func (SyncMediaOut) Command() Command { return CommandSyncMedia }

func (v SyncMediaOut) appendOutput(b []byte) ([]byte, error) {
	return appendEmbedded(b, protowire.Number(v.Command()), nil), nil
}

type marshaler interface {
	Marshal() ([]byte, error)
}

// appendVariant writes m as the embedded-message variant for cmd.
func appendVariant(b []byte, cmd Command, m marshaler) ([]byte, error) {
	return appendMessage(b, protowire.Number(cmd), m)
}

func appendMessage(b []byte, num protowire.Number, m marshaler) ([]byte, error) {
	body, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	return appendEmbedded(b, num, body), nil
}
