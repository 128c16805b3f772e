package enginetest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wippyai/anki-bridge/progress"
	"github.com/wippyai/anki-bridge/wire"
)

// DefaultHandlers returns a handler for every command. They implement just
// enough behavior to exercise the bridge end to end.
func DefaultHandlers() map[wire.Command]HandlerFunc {
	return map[wire.Command]HandlerFunc{
		wire.CommandTemplateRequirements:      TemplateRequirements,
		wire.CommandSchedTimingToday:          SchedTimingToday,
		wire.CommandRenderCard:                RenderCard,
		wire.CommandLocalMinutesWest:          LocalMinutesWest(time.Local),
		wire.CommandStripAVTags:               StripAVTags,
		wire.CommandExtractAVTags:             ExtractAVTags,
		wire.CommandExpandClozesToRevealLatex: ExpandClozes,
		wire.CommandAddFileToMediaFolder:      AddFileToMediaFolder,
		wire.CommandSyncMedia:                 SyncMedia(DefaultSyncSteps),
	}
}

var fieldRefRe = regexp.MustCompile(`\{\{([^}]*)\}\}`)

// TemplateRequirements treats fields referenced inside {{#Field}} sections
// as all required and plain references as any required. A template that
// references no known field can never be satisfied.
func TemplateRequirements(_ context.Context, call *Call) (wire.Output, *wire.BackendError) {
	in := call.Input.(*wire.TemplateRequirementsIn)
	out := &wire.TemplateRequirementsOut{}
	for _, front := range in.TemplateFront {
		var anyOrds, allOrds []uint32
		seen := map[uint32]bool{}
		for _, m := range fieldRefRe.FindAllStringSubmatch(front, -1) {
			ref := strings.TrimSpace(m[1])
			section := strings.HasPrefix(ref, "#")
			ref = strings.TrimLeft(ref, "#^/")
			if i := strings.LastIndexByte(ref, ':'); i >= 0 {
				ref = ref[i+1:]
			}
			ord, ok := in.FieldNamesToOrdinals[ref]
			if !ok || seen[ord] {
				continue
			}
			seen[ord] = true
			if section {
				allOrds = append(allOrds, ord)
			} else {
				anyOrds = append(anyOrds, ord)
			}
		}
		req := &wire.TemplateRequirement{}
		switch {
		case len(allOrds) > 0:
			req.Value = &wire.RequirementAll{Ords: allOrds}
		case len(anyOrds) > 0:
			req.Value = &wire.RequirementAny{Ords: anyOrds}
		default:
			req.Value = &wire.RequirementNone{}
		}
		out.Requirements = append(out.Requirements, req)
	}
	return out, nil
}

const secsPerDay = 86400

// SchedTimingToday counts whole days between the rollover-adjusted local
// creation and current days.
func SchedTimingToday(_ context.Context, call *Call) (wire.Output, *wire.BackendError) {
	in := call.Input.(*wire.SchedTimingTodayIn)
	if in.RolloverHour < 0 || in.RolloverHour > 23 {
		return nil, Failure(wire.ErrorInvalidInput, fmt.Sprintf("rollover hour %d out of range", in.RolloverHour))
	}
	rollover := int64(in.RolloverHour) * 3600

	localDay := func(secs int64, minsWest int32) int64 {
		return floorDiv(secs-int64(minsWest)*60-rollover, secsPerDay)
	}
	createdDay := localDay(in.CreatedSecs, in.CreatedMinsWest)
	today := localDay(in.NowSecs, in.NowMinsWest)

	elapsed := today - createdDay
	if elapsed < 0 {
		elapsed = 0
	}
	next := (today+1)*secsPerDay + rollover + int64(in.NowMinsWest)*60
	return &wire.SchedTimingTodayOut{DaysElapsed: uint32(elapsed), NextDayAt: next}, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// RenderCard splits each template into text and field replacements.
// {{filter:Field}} lists filters innermost first; {{FrontSide}} on the answer
// side is replaced by the rendered question. Section tags are dropped.
func RenderCard(_ context.Context, call *Call) (wire.Output, *wire.BackendError) {
	in := call.Input.(*wire.RenderCardIn)
	qnodes, qtext, failure := renderSide(in.QuestionTemplate, in.Fields, "", true)
	if failure != nil {
		return nil, failure
	}
	anodes, _, failure := renderSide(in.AnswerTemplate, in.Fields, qtext, false)
	if failure != nil {
		return nil, failure
	}
	return &wire.RenderCardOut{QuestionNodes: qnodes, AnswerNodes: anodes}, nil
}

func renderSide(tmpl string, fields map[string]string, frontSide string, question bool) ([]*wire.RenderedTemplateNode, string, *wire.BackendError) {
	var nodes []*wire.RenderedTemplateNode
	var text strings.Builder
	for len(tmpl) > 0 {
		open := strings.Index(tmpl, "{{")
		if open < 0 {
			nodes = append(nodes, &wire.RenderedTemplateNode{Value: wire.NodeText(tmpl)})
			text.WriteString(tmpl)
			break
		}
		if open > 0 {
			nodes = append(nodes, &wire.RenderedTemplateNode{Value: wire.NodeText(tmpl[:open])})
			text.WriteString(tmpl[:open])
		}
		end := strings.Index(tmpl[open:], "}}")
		if end < 0 {
			return nil, "", &wire.BackendError{
				Kind:  wire.ErrorTemplateParse,
				Info:  "Found '{{' without a matching '}}'.",
				QSide: question,
			}
		}
		tag := strings.TrimSpace(tmpl[open+2 : open+end])
		tmpl = tmpl[open+end+2:]

		if tag == "" || strings.ContainsAny(tag[:1], "#^/") {
			continue
		}
		parts := strings.Split(tag, ":")
		name := parts[len(parts)-1]
		var filters []string
		for i := len(parts) - 2; i >= 0; i-- {
			filters = append(filters, parts[i])
		}

		current, ok := fields[name]
		if name == "FrontSide" && !question {
			current, ok = frontSide, true
		}
		if !ok {
			return nil, "", &wire.BackendError{
				Kind:  wire.ErrorTemplateParse,
				Info:  fmt.Sprintf("Found '{{%s}}', but there is no field called '%s'.", tag, name),
				QSide: question,
			}
		}
		nodes = append(nodes, &wire.RenderedTemplateNode{Value: &wire.RenderedTemplateReplacement{
			FieldName:   name,
			CurrentText: current,
			Filters:     filters,
		}})
		text.WriteString(current)
	}
	return nodes, text.String(), nil
}

// LocalMinutesWest answers with the offset of loc at the requested time.
func LocalMinutesWest(loc *time.Location) HandlerFunc {
	return func(_ context.Context, call *Call) (wire.Output, *wire.BackendError) {
		stamp := int64(call.Input.(wire.LocalMinutesWestIn))
		_, offset := time.Unix(stamp, 0).In(loc).Zone()
		return wire.LocalMinutesWestOut(-offset / 60), nil
	}
}

var avTagRe = regexp.MustCompile(`\[sound:([^\]]+)\]|(?s:\[anki:tts([^\]]*)\](.*?)\[/anki:tts\])`)

// StripAVTags removes [sound:...] and [anki:tts ...]...[/anki:tts] tags.
func StripAVTags(_ context.Context, call *Call) (wire.Output, *wire.BackendError) {
	text := string(call.Input.(wire.StripAVTagsIn))
	return wire.StripAVTagsOut(avTagRe.ReplaceAllString(text, "")), nil
}

// ExtractAVTags removes the same tags as StripAVTags and returns them in
// order of appearance.
func ExtractAVTags(_ context.Context, call *Call) (wire.Output, *wire.BackendError) {
	in := call.Input.(*wire.ExtractAVTagsIn)
	out := &wire.ExtractAVTagsOut{}

	var text strings.Builder
	last := 0
	for _, m := range avTagRe.FindAllStringSubmatchIndex(in.Text, -1) {
		text.WriteString(in.Text[last:m[0]])
		last = m[1]
		if m[2] >= 0 {
			out.AVTags = append(out.AVTags, &wire.AVTag{Value: wire.SoundOrVideo(in.Text[m[2]:m[3]])})
			continue
		}
		tts, failure := parseTTS(in.Text[m[4]:m[5]], in.Text[m[6]:m[7]])
		if failure != nil {
			return nil, failure
		}
		out.AVTags = append(out.AVTags, &wire.AVTag{Value: tts})
	}
	text.WriteString(in.Text[last:])
	out.Text = text.String()
	return out, nil
}

func parseTTS(args, fieldText string) (*wire.TTSTag, *wire.BackendError) {
	tag := &wire.TTSTag{FieldText: fieldText}
	for _, arg := range strings.Fields(args) {
		key, val, _ := strings.Cut(arg, "=")
		switch key {
		case "lang":
			tag.Lang = val
		case "voices":
			tag.Voices = strings.Split(val, ",")
		case "speed":
			speed, err := strconv.ParseFloat(val, 32)
			if err != nil {
				return nil, Failure(wire.ErrorInvalidInput, fmt.Sprintf("invalid tts speed %q", val))
			}
			tag.Speed = float32(speed)
		default:
			tag.OtherArgs = append(tag.OtherArgs, arg)
		}
	}
	return tag, nil
}

var clozeRe = regexp.MustCompile(`(?s)\{\{c\d+::(.*?)(?:::.*?)?\}\}`)

// ExpandClozes replaces every cloze deletion with its answer text.
func ExpandClozes(_ context.Context, call *Call) (wire.Output, *wire.BackendError) {
	text := string(call.Input.(wire.ExpandClozesIn))
	return wire.ExpandClozesOut(clozeRe.ReplaceAllString(text, "${1}")), nil
}

// AddFileToMediaFolder stores the file in the session's in-memory media
// folder, renaming it when the name is taken.
func AddFileToMediaFolder(_ context.Context, call *Call) (wire.Output, *wire.BackendError) {
	in := call.Input.(*wire.AddFileToMediaFolderIn)
	name, err := call.session.media.add(in.DesiredName, in.Data)
	if err != nil {
		return nil, Failure(wire.ErrorIO, err.Error())
	}
	return wire.AddFileToMediaFolderOut(name), nil
}

// DefaultSyncSteps reports each kind of media sync progress once.
var DefaultSyncSteps = []progress.MediaSyncProgress{
	progress.MediaSyncDownloadedChanges{Changes: 2},
	progress.MediaSyncDownloadedFiles{Files: 2},
	progress.MediaSyncUploaded{Files: 3, Deletions: 1},
	progress.MediaSyncRemovedFiles{Files: 1},
}

// SyncMedia reports steps as progress and fails with an interrupted error
// as soon as the host declines to continue. An empty hkey fails
// authentication and an empty endpoint fails with a network error.
func SyncMedia(steps []progress.MediaSyncProgress) HandlerFunc {
	return func(_ context.Context, call *Call) (wire.Output, *wire.BackendError) {
		in := call.Input.(*wire.SyncMediaIn)
		if in.HKey == "" {
			return nil, &wire.BackendError{Kind: wire.ErrorAnkiWebAuthFailed}
		}
		if in.Endpoint == "" {
			return nil, Failure(wire.ErrorNetwork, "no sync endpoint configured")
		}
		for _, step := range steps {
			if !call.Progress(progress.Event{Kind: progress.KindMediaSync, MediaSync: step}) {
				return nil, &wire.BackendError{Kind: wire.ErrorInterrupted}
			}
		}
		return wire.SyncMediaOut{}, nil
	}
}
