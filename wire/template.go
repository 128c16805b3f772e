package wire

import (
	"github.com/wippyai/anki-bridge/errors"
)

// TemplateRequirement describes which fields one template needs to produce a
// non-empty card.
//
// Wire layout (oneof value):
//
//	1: TemplateRequirementAnyAll any
//	2: TemplateRequirementAnyAll all
//	3: Empty                     none
type TemplateRequirement struct {
	Value RequirementValue
}

// RequirementValue is a variant of TemplateRequirement.
type RequirementValue interface {
	isRequirement()
}

// RequirementAny is satisfied when any of Ords is non-empty.
type RequirementAny struct {
	Ords []uint32
}

// RequirementAll is satisfied when all of Ords are non-empty.
type RequirementAll struct {
	Ords []uint32
}

// RequirementNone can never be satisfied.
type RequirementNone struct{}

func (*RequirementAny) isRequirement()  {}
func (*RequirementAll) isRequirement()  {}
func (*RequirementNone) isRequirement() {}

func (m *TemplateRequirement) Marshal() ([]byte, error) {
	switch v := m.Value.(type) {
	case *RequirementAny:
		return appendEmbedded(nil, 1, appendPackedUint32s(nil, 1, v.Ords)), nil
	case *RequirementAll:
		return appendEmbedded(nil, 2, appendPackedUint32s(nil, 1, v.Ords)), nil
	case *RequirementNone:
		return appendEmbedded(nil, 3, nil), nil
	case nil:
		return nil, errors.TagCount(errors.PhaseEncode, "TemplateRequirement", 0)
	}
	return nil, errors.UnknownDiscriminant(errors.PhaseEncode, "TemplateRequirement", m.Value)
}

func (m *TemplateRequirement) Unmarshal(b []byte) error {
	u := unionReader{msg: "TemplateRequirement"}
	*m = TemplateRequirement{}
	err := readFields(u.msg, b, func(f field) error {
		u.seen()
		switch f.num {
		case 1, 2:
			body, err := f.asMessage(u.msg)
			if err != nil {
				return err
			}
			ords, err := readOrds(body)
			if err != nil {
				return err
			}
			if f.num == 1 {
				m.Value = &RequirementAny{Ords: ords}
			} else {
				m.Value = &RequirementAll{Ords: ords}
			}
		case 3:
			if _, err := f.asMessage(u.msg); err != nil {
				return err
			}
			m.Value = &RequirementNone{}
		default:
			return u.unknown(f)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return u.done()
}

func readOrds(b []byte) ([]uint32, error) {
	const msg = "TemplateRequirementAnyAll"
	var ords []uint32
	err := readFields(msg, b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var err error
		ords, err = f.appendUint32s(msg, ords)
		return err
	})
	return ords, err
}

// RenderedTemplateNode is one fragment of a rendered card side.
//
// Wire layout (oneof value):
//
//	1: string                      text
//	2: RenderedTemplateReplacement replacement
type RenderedTemplateNode struct {
	Value NodeValue
}

// NodeValue is a variant of RenderedTemplateNode.
type NodeValue interface {
	isNode()
}

// NodeText is literal text.
type NodeText string

// RenderedTemplateReplacement is a field reference with its current value
// and the filters applied to it.
//
// Wire layout:
//
//	1: string          field_name
//	2: string          current_text
//	3: repeated string filters
type RenderedTemplateReplacement struct {
	FieldName   string
	CurrentText string
	Filters     []string
}

func (NodeText) isNode()                     {}
func (*RenderedTemplateReplacement) isNode() {}

func (m *RenderedTemplateReplacement) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.FieldName)
	b = appendString(b, 2, m.CurrentText)
	b = appendStrings(b, 3, m.Filters)
	return b, nil
}

func (m *RenderedTemplateReplacement) Unmarshal(b []byte) error {
	const msg = "RenderedTemplateReplacement"
	*m = RenderedTemplateReplacement{}
	return readFields(msg, b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.FieldName, err = f.asString(msg)
		case 2:
			m.CurrentText, err = f.asString(msg)
		case 3:
			var s string
			if s, err = f.asString(msg); err == nil {
				m.Filters = append(m.Filters, s)
			}
		}
		return err
	})
}

func (m *RenderedTemplateNode) Marshal() ([]byte, error) {
	switch v := m.Value.(type) {
	case NodeText:
		return appendStringAlways(nil, 1, string(v)), nil
	case *RenderedTemplateReplacement:
		return appendMessage(nil, 2, v)
	case nil:
		return nil, errors.TagCount(errors.PhaseEncode, "RenderedTemplateNode", 0)
	}
	return nil, errors.UnknownDiscriminant(errors.PhaseEncode, "RenderedTemplateNode", m.Value)
}

func (m *RenderedTemplateNode) Unmarshal(b []byte) error {
	u := unionReader{msg: "RenderedTemplateNode"}
	*m = RenderedTemplateNode{}
	err := readFields(u.msg, b, func(f field) error {
		u.seen()
		switch f.num {
		case 1:
			s, err := f.asString(u.msg)
			if err != nil {
				return err
			}
			m.Value = NodeText(s)
		case 2:
			r, err := decodeEmbedded(u.msg, f, &RenderedTemplateReplacement{})
			if err != nil {
				return err
			}
			m.Value = r
		default:
			return u.unknown(f)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return u.done()
}

// AVTag is an audio/video reference extracted from card text.
//
// Wire layout (oneof value):
//
//	1: string sound_or_video
//	2: TTSTag tts
type AVTag struct {
	Value AVTagValue
}

// AVTagValue is a variant of AVTag.
type AVTagValue interface {
	isAVTag()
}

// SoundOrVideo is a media filename.
type SoundOrVideo string

// TTSTag is a text-to-speech request.
//
// Wire layout:
//
//	1: string          field_text
//	2: string          lang
//	3: repeated string voices
//	4: float           speed
//	5: repeated string other_args
type TTSTag struct {
	FieldText string
	Lang      string
	Voices    []string
	OtherArgs []string
	Speed     float32
}

func (SoundOrVideo) isAVTag() {}
func (*TTSTag) isAVTag()      {}

func (m *TTSTag) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.FieldText)
	b = appendString(b, 2, m.Lang)
	b = appendStrings(b, 3, m.Voices)
	b = appendFloat32(b, 4, m.Speed)
	b = appendStrings(b, 5, m.OtherArgs)
	return b, nil
}

func (m *TTSTag) Unmarshal(b []byte) error {
	const msg = "TTSTag"
	*m = TTSTag{}
	return readFields(msg, b, func(f field) error {
		var err error
		var s string
		switch f.num {
		case 1:
			m.FieldText, err = f.asString(msg)
		case 2:
			m.Lang, err = f.asString(msg)
		case 3:
			if s, err = f.asString(msg); err == nil {
				m.Voices = append(m.Voices, s)
			}
		case 4:
			m.Speed, err = f.asFloat32(msg)
		case 5:
			if s, err = f.asString(msg); err == nil {
				m.OtherArgs = append(m.OtherArgs, s)
			}
		}
		return err
	})
}

func (m *AVTag) Marshal() ([]byte, error) {
	switch v := m.Value.(type) {
	case SoundOrVideo:
		return appendStringAlways(nil, 1, string(v)), nil
	case *TTSTag:
		return appendMessage(nil, 2, v)
	case nil:
		return nil, errors.TagCount(errors.PhaseEncode, "AVTag", 0)
	}
	return nil, errors.UnknownDiscriminant(errors.PhaseEncode, "AVTag", m.Value)
}

func (m *AVTag) Unmarshal(b []byte) error {
	u := unionReader{msg: "AVTag"}
	*m = AVTag{}
	err := readFields(u.msg, b, func(f field) error {
		u.seen()
		switch f.num {
		case 1:
			s, err := f.asString(u.msg)
			if err != nil {
				return err
			}
			m.Value = SoundOrVideo(s)
		case 2:
			tts, err := decodeEmbedded(u.msg, f, &TTSTag{})
			if err != nil {
				return err
			}
			m.Value = tts
		default:
			return u.unknown(f)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return u.done()
}
