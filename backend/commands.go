package backend

import (
	"context"

	"github.com/wippyai/anki-bridge/wire"
)

// TemplateRequirements reports, for each template front, which field
// ordinals must be non-empty for the template to produce a card.
func (b *Backend) TemplateRequirements(ctx context.Context, fronts []string, fieldMap map[string]int) ([]TemplateRequirement, error) {
	in, err := encodeTemplateRequirements(fronts, fieldMap)
	if err != nil {
		return nil, err
	}
	out, err := b.run(ctx, in, false)
	if err != nil {
		return nil, err
	}
	reqs, err := decodeTemplateRequirements(result[*wire.TemplateRequirementsOut](out))
	mustDecode(err)
	return reqs, nil
}

// SchedTimingToday returns the engine's day boundary computation. The
// minutes-west offsets are UTC offsets of the creation and current times.
func (b *Backend) SchedTimingToday(ctx context.Context, createdSecs int64, createdMinsWest int32, nowSecs int64, nowMinsWest int32, rolloverHour int32) (*SchedTimingToday, error) {
	out, err := b.run(ctx, &wire.SchedTimingTodayIn{
		CreatedSecs:     createdSecs,
		CreatedMinsWest: createdMinsWest,
		NowSecs:         nowSecs,
		NowMinsWest:     nowMinsWest,
		RolloverHour:    rolloverHour,
	}, false)
	if err != nil {
		return nil, err
	}
	return result[*wire.SchedTimingTodayOut](out), nil
}

// RenderCard renders both sides of a card into node sequences.
func (b *Backend) RenderCard(ctx context.Context, qfmt, afmt string, fields map[string]string, cardOrd int) (q, a []TemplateNode, err error) {
	in, err := encodeRenderCard(qfmt, afmt, fields, cardOrd)
	if err != nil {
		return nil, nil, err
	}
	out, err := b.run(ctx, in, false)
	if err != nil {
		return nil, nil, err
	}
	rendered := result[*wire.RenderCardOut](out)
	q, err = decodeNodes(rendered.QuestionNodes)
	mustDecode(err)
	a, err = decodeNodes(rendered.AnswerNodes)
	mustDecode(err)
	return q, a, nil
}

// LocalMinutesWest returns the local UTC offset, in minutes west, at the
// unix time stamp.
func (b *Backend) LocalMinutesWest(ctx context.Context, stamp int64) (int, error) {
	out, err := b.run(ctx, wire.LocalMinutesWestIn(stamp), false)
	if err != nil {
		return 0, err
	}
	return int(result[wire.LocalMinutesWestOut](out)), nil
}

// StripAVTags removes audio/video tags from text.
func (b *Backend) StripAVTags(ctx context.Context, text string) (string, error) {
	out, err := b.run(ctx, wire.StripAVTagsIn(text), false)
	if err != nil {
		return "", err
	}
	return string(result[wire.StripAVTagsOut](out)), nil
}

// ExtractAVTags returns text with its audio/video tags removed, and the tags
// in order of appearance.
func (b *Backend) ExtractAVTags(ctx context.Context, text string, questionSide bool) (string, []AVTag, error) {
	out, err := b.run(ctx, &wire.ExtractAVTagsIn{Text: text, QuestionSide: questionSide}, false)
	if err != nil {
		return "", nil, err
	}
	extracted := result[*wire.ExtractAVTagsOut](out)
	tags, err := decodeAVTags(extracted.AVTags)
	mustDecode(err)
	return extracted.Text, tags, nil
}

// ExpandClozesToRevealLatex expands cloze deletions so LaTeX inside them
// can be previewed.
func (b *Backend) ExpandClozesToRevealLatex(ctx context.Context, text string) (string, error) {
	out, err := b.run(ctx, wire.ExpandClozesIn(text), false)
	if err != nil {
		return "", err
	}
	return string(result[wire.ExpandClozesOut](out)), nil
}

// AddFileToMediaFolder stores data in the media folder and returns the name
// it was stored under, which differs from desiredName on a collision.
func (b *Backend) AddFileToMediaFolder(ctx context.Context, desiredName string, data []byte) (string, error) {
	out, err := b.run(ctx, &wire.AddFileToMediaFolderIn{DesiredName: desiredName, Data: data}, false)
	if err != nil {
		return "", err
	}
	return string(result[wire.AddFileToMediaFolderOut](out)), nil
}

// SyncMedia syncs the media folder with a server. It is long-running: the
// host lock is released during the call and progress is streamed to the
// observer. If the observer asks to stop, SyncMedia either completes or
// fails with an error matching ErrInterrupted.
func (b *Backend) SyncMedia(ctx context.Context, auth MediaSyncAuth) error {
	_, err := b.run(ctx, encodeSyncMedia(auth), true)
	return err
}
