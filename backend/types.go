package backend

import (
	"github.com/wippyai/anki-bridge/wire"
)

// RequirementKind says how a template's field ordinals must be filled for
// the template to produce a card.
type RequirementKind int

const (
	RequirementAny RequirementKind = iota + 1
	RequirementAll
	RequirementNone
)

func (k RequirementKind) String() string {
	switch k {
	case RequirementAny:
		return "any"
	case RequirementAll:
		return "all"
	case RequirementNone:
		return "none"
	default:
		return "unknown"
	}
}

// TemplateRequirement is the requirement of the template at Index.
// Ords is ascending, and empty for RequirementNone.
type TemplateRequirement struct {
	Ords  []int
	Index int
	Kind  RequirementKind
}

// TemplateNode is one fragment of a rendered card side: TemplateText or
// *TemplateReplacement.
type TemplateNode interface {
	isTemplateNode()
}

// TemplateText is literal template text.
type TemplateText string

// TemplateReplacement is a field reference with its current value and the
// filters to apply to it, in order.
type TemplateReplacement struct {
	FieldName   string
	CurrentText string
	Filters     []string
}

func (TemplateText) isTemplateNode()         {}
func (*TemplateReplacement) isTemplateNode() {}

// AVTag is an audio/video reference: SoundOrVideoTag or TTSTag.
type AVTag interface {
	isAVTag()
}

// SoundOrVideoTag references a file in the media folder.
type SoundOrVideoTag struct {
	Filename string
}

// TTSTag asks for text to be spoken.
type TTSTag struct {
	FieldText string
	Lang      string
	Voices    []string
	OtherArgs []string
	Speed     float32
}

func (SoundOrVideoTag) isAVTag() {}
func (TTSTag) isAVTag()          {}

// SchedTimingToday is passed through from the engine unchanged.
type SchedTimingToday = wire.SchedTimingTodayOut

// Paths locates the collection and its media.
type Paths struct {
	CollectionPath  string
	MediaFolderPath string
	MediaDBPath     string
}

// MediaSyncAuth holds what the engine needs to sync media with a server.
type MediaSyncAuth struct {
	HKey        string
	MediaFolder string
	MediaDB     string
	Endpoint    string
}
