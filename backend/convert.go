package backend

import (
	"fmt"
	"math"
	"slices"

	"github.com/wippyai/anki-bridge/errors"
	"github.com/wippyai/anki-bridge/wire"
)

func encodeTemplateRequirements(fronts []string, fieldMap map[string]int) (*wire.TemplateRequirementsIn, error) {
	ords := make(map[string]uint32, len(fieldMap))
	for name, ord := range fieldMap {
		if ord < 0 || uint64(ord) > math.MaxUint32 {
			return nil, errors.Overflow(errors.PhaseEncode, []string{"field_names_to_ordinals", name}, ord, "uint32")
		}
		ords[name] = uint32(ord)
	}
	return &wire.TemplateRequirementsIn{
		TemplateFront:        slices.Clone(fronts),
		FieldNamesToOrdinals: ords,
	}, nil
}

// decodeTemplateRequirements indexes requirements by position and sorts
// each ordinal set. The wire slices are left untouched.
func decodeTemplateRequirements(out *wire.TemplateRequirementsOut) ([]TemplateRequirement, error) {
	reqs := make([]TemplateRequirement, 0, len(out.Requirements))
	for i, r := range out.Requirements {
		if r == nil {
			return nil, errors.TagCount(errors.PhaseDecode, "TemplateRequirement", 0)
		}
		req := TemplateRequirement{Index: i}
		switch v := r.Value.(type) {
		case *wire.RequirementAny:
			req.Kind = RequirementAny
			req.Ords = sortedOrds(v.Ords)
		case *wire.RequirementAll:
			req.Kind = RequirementAll
			req.Ords = sortedOrds(v.Ords)
		case *wire.RequirementNone:
			req.Kind = RequirementNone
			req.Ords = []int{}
		case nil:
			return nil, errors.TagCount(errors.PhaseDecode, "TemplateRequirement", 0)
		default:
			return nil, unknownVariant("TemplateRequirement", v)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func sortedOrds(ords []uint32) []int {
	out := make([]int, len(ords))
	for i, o := range ords {
		out[i] = int(o)
	}
	slices.Sort(out)
	return out
}

func encodeRenderCard(qfmt, afmt string, fields map[string]string, cardOrd int) (*wire.RenderCardIn, error) {
	if cardOrd < math.MinInt32 || cardOrd > math.MaxInt32 {
		return nil, errors.Overflow(errors.PhaseEncode, []string{"card_ordinal"}, cardOrd, "int32")
	}
	var copied map[string]string
	if len(fields) > 0 {
		copied = make(map[string]string, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
	}
	return &wire.RenderCardIn{
		QuestionTemplate: qfmt,
		AnswerTemplate:   afmt,
		Fields:           copied,
		CardOrdinal:      int32(cardOrd),
	}, nil
}

// decodeNodes keeps the received order.
func decodeNodes(nodes []*wire.RenderedTemplateNode) ([]TemplateNode, error) {
	out := make([]TemplateNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			return nil, errors.TagCount(errors.PhaseDecode, "RenderedTemplateNode", 0)
		}
		switch v := n.Value.(type) {
		case wire.NodeText:
			out = append(out, TemplateText(v))
		case *wire.RenderedTemplateReplacement:
			out = append(out, &TemplateReplacement{
				FieldName:   v.FieldName,
				CurrentText: v.CurrentText,
				Filters:     nonNil(v.Filters),
			})
		case nil:
			return nil, errors.TagCount(errors.PhaseDecode, "RenderedTemplateNode", 0)
		default:
			return nil, unknownVariant("RenderedTemplateNode", v)
		}
	}
	return out, nil
}

func decodeAVTags(tags []*wire.AVTag) ([]AVTag, error) {
	out := make([]AVTag, 0, len(tags))
	for _, t := range tags {
		if t == nil {
			return nil, errors.TagCount(errors.PhaseDecode, "AVTag", 0)
		}
		switch v := t.Value.(type) {
		case wire.SoundOrVideo:
			out = append(out, SoundOrVideoTag{Filename: string(v)})
		case *wire.TTSTag:
			out = append(out, TTSTag{
				FieldText: v.FieldText,
				Lang:      v.Lang,
				Voices:    nonNil(v.Voices),
				OtherArgs: nonNil(v.OtherArgs),
				Speed:     v.Speed,
			})
		case nil:
			return nil, errors.TagCount(errors.PhaseDecode, "AVTag", 0)
		default:
			return nil, unknownVariant("AVTag", v)
		}
	}
	return out, nil
}

func encodeSyncMedia(auth MediaSyncAuth) *wire.SyncMediaIn {
	return &wire.SyncMediaIn{
		HKey:        auth.HKey,
		Endpoint:    auth.Endpoint,
		MediaFolder: auth.MediaFolder,
		MediaDB:     auth.MediaDB,
	}
}

// nonNil copies s, returning an empty list rather than nil.
func nonNil(s []string) []string {
	if len(s) == 0 {
		return []string{}
	}
	return slices.Clone(s)
}

func unknownVariant(msg string, v any) *errors.Error {
	return errors.UnknownDiscriminant(errors.PhaseDecode, msg, fmt.Sprintf("%T", v))
}
