package wire

import (
	"bytes"
	stderrors "errors"
	"reflect"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/anki-bridge/errors"
)

func allInputs() []Input {
	return []Input{
		&TemplateRequirementsIn{
			TemplateFront:        []string{"{{Front}}", "{{Back}}{{Extra}}"},
			FieldNamesToOrdinals: map[string]uint32{"Front": 0, "Back": 1, "Extra": 2},
		},
		&SchedTimingTodayIn{
			CreatedSecs:     1_500_000_000,
			CreatedMinsWest: -600,
			NowSecs:         1_700_000_000,
			NowMinsWest:     300,
			RolloverHour:    4,
		},
		&RenderCardIn{
			QuestionTemplate: "{{Front}}",
			AnswerTemplate:   "{{FrontSide}}<hr>{{Back}}",
			Fields:           map[string]string{"Front": "q", "Back": "a"},
			CardOrdinal:      1,
		},
		LocalMinutesWestIn(1_700_000_000),
		LocalMinutesWestIn(-5),
		StripAVTagsIn("Hello [sound:a.mp3]"),
		&ExtractAVTagsIn{Text: "Hello [sound:a.mp3]", QuestionSide: true},
		ExpandClozesIn("{{c1::x}}"),
		&AddFileToMediaFolderIn{DesiredName: "dup.jpg", Data: []byte{0xff, 0xd8, 0xff}},
		&SyncMediaIn{HKey: "k", Endpoint: "https://sync.example/", MediaFolder: "/m", MediaDB: "/m.db"},
	}
}

func allOutputs() []Output {
	return []Output{
		&TemplateRequirementsOut{Requirements: []*TemplateRequirement{
			{Value: &RequirementAny{Ords: []uint32{2, 0}}},
			{Value: &RequirementAll{Ords: []uint32{1}}},
			{Value: &RequirementNone{}},
		}},
		&SchedTimingTodayOut{DaysElapsed: 42, NextDayAt: 1_700_050_000},
		&RenderCardOut{
			QuestionNodes: []*RenderedTemplateNode{
				{Value: NodeText("<b>")},
				{Value: &RenderedTemplateReplacement{FieldName: "Front", CurrentText: "q", Filters: []string{"text", "furigana"}}},
			},
			AnswerNodes: []*RenderedTemplateNode{{Value: NodeText("")}},
		},
		LocalMinutesWestOut(-600),
		LocalMinutesWestOut(0),
		StripAVTagsOut("Hello "),
		&ExtractAVTagsOut{Text: "Hello [anki:play:q:0]", AVTags: []*AVTag{
			{Value: SoundOrVideo("a.mp3")},
			{Value: &TTSTag{FieldText: "hi", Lang: "en_US", Voices: []string{"Alex"}, Speed: 1.5, OtherArgs: []string{"x=1"}}},
		}},
		ExpandClozesOut("x"),
		AddFileToMediaFolderOut("dup-1.jpg"),
		SyncMediaOut{},
	}
}

func TestBackendInputRoundTrip(t *testing.T) {
	for _, in := range allInputs() {
		t.Run(in.Command().String(), func(t *testing.T) {
			b, err := (&BackendInput{Input: in}).Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var got BackendInput
			if err := got.Unmarshal(b); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !reflect.DeepEqual(got.Input, in) {
				t.Errorf("round trip = %#v, want %#v", got.Input, in)
			}
		})
	}
}

func TestBackendOutputRoundTrip(t *testing.T) {
	for _, out := range allOutputs() {
		t.Run(out.Command().String(), func(t *testing.T) {
			b, err := (&BackendOutput{Result: out}).Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var got BackendOutput
			if err := got.Unmarshal(b); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got.Error != nil {
				t.Fatalf("unexpected error variant %+v", got.Error)
			}
			if !reflect.DeepEqual(got.Result, out) {
				t.Errorf("round trip = %#v, want %#v", got.Result, out)
			}
		})
	}
}

func TestBackendOutputErrorRoundTrip(t *testing.T) {
	tests := []BackendError{
		{Kind: ErrorInvalidInput, Info: "bad input"},
		{Kind: ErrorTemplateParse, Info: "bad tag", QSide: true},
		{Kind: ErrorTemplateParse, Info: "bad tag"},
		{Kind: ErrorIO, Info: "disk full"},
		{Kind: ErrorDB, Info: "locked"},
		{Kind: ErrorNetwork, Info: "timeout"},
		{Kind: ErrorAnkiWebAuthFailed},
		{Kind: ErrorAnkiWebMisc, Info: "try later"},
		{Kind: ErrorInterrupted},
	}

	for _, want := range tests {
		t.Run(want.Kind.String(), func(t *testing.T) {
			want := want
			b, err := (&BackendOutput{Error: &want}).Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var got BackendOutput
			if err := got.Unmarshal(b); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got.Result != nil {
				t.Fatalf("unexpected result %#v", got.Result)
			}
			if !reflect.DeepEqual(*got.Error, want) {
				t.Errorf("error = %+v, want %+v", *got.Error, want)
			}
		})
	}
}

func TestMarshalDeterministic(t *testing.T) {
	in := &BackendInput{Input: &RenderCardIn{
		Fields: map[string]string{"z": "1", "a": "2", "m": "3", "b": "4", "y": "5"},
	}}
	first, err := in.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 50; i++ {
		b, err := in.Marshal()
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(b, first) {
			t.Fatalf("iteration %d produced different bytes", i)
		}
	}
}

func TestMarshalExactBytes(t *testing.T) {
	tests := []struct {
		name string
		msg  marshaler
		want []byte
	}{
		{
			name: "strip_av_tags",
			msg:  &BackendInput{Input: StripAVTagsIn("a")},
			want: []byte{0xba, 0x01, 0x01, 'a'},
		},
		{
			name: "local_minutes_west zero is still written",
			msg:  &BackendInput{Input: LocalMinutesWestIn(0)},
			want: []byte{0xb0, 0x01, 0x00},
		},
		{
			name: "minutes west response is zigzag",
			msg:  &BackendOutput{Result: LocalMinutesWestOut(-1)},
			want: []byte{0xb0, 0x01, 0x01},
		},
		{
			name: "sync_media empty success",
			msg:  &BackendOutput{Result: SyncMediaOut{}},
			want: []byte{0xda, 0x01, 0x00},
		},
		{
			name: "interrupted error",
			msg:  &BackendOutput{Error: &BackendError{Kind: ErrorInterrupted}},
			want: []byte{0xfa, 0x7f, 0x02, 0x42, 0x00},
		},
		{
			name: "zero scalars omitted",
			msg:  &BackendInit{},
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.msg.Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("Marshal = % x, want % x", got, tc.want)
			}
		})
	}
}

func TestBackendInitRoundTrip(t *testing.T) {
	want := BackendInit{CollectionPath: "/c/collection.anki2", MediaFolderPath: "/c/media", MediaDBPath: "/c/media.db"}
	b, err := want.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got BackendInit
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestEnvelopeMarshalRejectsBadUnions(t *testing.T) {
	tests := []struct {
		name string
		msg  marshaler
		kind errors.Kind
	}{
		{"empty input", &BackendInput{}, errors.KindTagCount},
		{"empty output", &BackendOutput{}, errors.KindTagCount},
		{"output with both", &BackendOutput{Result: StripAVTagsOut("x"), Error: &BackendError{Kind: ErrorIO}}, errors.KindTagCount},
		{"error without kind", &BackendError{}, errors.KindTagCount},
		{"error with unknown kind", &BackendError{Kind: 99}, errors.KindUnknownDiscriminant},
		{"requirement without value", &TemplateRequirement{}, errors.KindTagCount},
		{"node without value", &RenderedTemplateNode{}, errors.KindTagCount},
		{"av tag without value", &AVTag{}, errors.KindTagCount},
		{"progress without value", &Progress{}, errors.KindTagCount},
		{"media sync without value", &MediaSyncProgress{}, errors.KindTagCount},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.msg.Marshal()
			assertKind(t, err, tc.kind)
		})
	}
}

func TestUnmarshalRejectsMalformedUnions(t *testing.T) {
	strip := appendStringAlways(nil, protowire.Number(CommandStripAVTags), "a")
	expand := appendStringAlways(nil, protowire.Number(CommandExpandClozesToRevealLatex), "b")
	unknown := appendStringAlways(nil, 99, "?")
	errField := appendEmbedded(nil, fieldError, appendEmbedded(nil, 8, nil))

	tests := []struct {
		name string
		msg  unmarshaler
		data []byte
		kind errors.Kind
	}{
		{"input no tags", &BackendInput{}, nil, errors.KindTagCount},
		{"input two tags", &BackendInput{}, append(append([]byte{}, strip...), expand...), errors.KindTagCount},
		{"input repeated tag", &BackendInput{}, append(append([]byte{}, strip...), strip...), errors.KindTagCount},
		{"input unknown command", &BackendInput{}, unknown, errors.KindUnknownDiscriminant},
		{"output no tags", &BackendOutput{}, nil, errors.KindTagCount},
		{"output result and error", &BackendOutput{}, append(append([]byte{}, strip...), errField...), errors.KindTagCount},
		{"output unknown variant", &BackendOutput{}, unknown, errors.KindUnknownDiscriminant},
		{"error no tags", &BackendError{}, nil, errors.KindTagCount},
		{"requirement unknown", &TemplateRequirement{}, appendEmbedded(nil, 4, nil), errors.KindUnknownDiscriminant},
		{"requirement two tags", &TemplateRequirement{}, append(appendEmbedded(nil, 1, nil), appendEmbedded(nil, 3, nil)...), errors.KindTagCount},
		{"node unknown", &RenderedTemplateNode{}, appendStringAlways(nil, 3, "x"), errors.KindUnknownDiscriminant},
		{"av tag unknown", &AVTag{}, appendStringAlways(nil, 3, "x"), errors.KindUnknownDiscriminant},
		{"av tag empty", &AVTag{}, nil, errors.KindTagCount},
		{"progress unknown", &Progress{}, appendEmbedded(nil, 2, nil), errors.KindUnknownDiscriminant},
		{"media sync unknown", &MediaSyncProgress{}, appendVarintAlways(nil, 5, 1), errors.KindUnknownDiscriminant},
		{"media sync two tags", &MediaSyncProgress{}, append(appendVarintAlways(nil, 1, 1), appendVarintAlways(nil, 4, 1)...), errors.KindTagCount},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Unmarshal(tc.data)
			assertKind(t, err, tc.kind)
			if !errors.IsMalformedUnion(err) {
				t.Errorf("IsMalformedUnion(%v) = false", err)
			}
		})
	}
}

func TestUnmarshalRejectsBadFields(t *testing.T) {
	tests := []struct {
		name string
		msg  unmarshaler
		data []byte
		kind errors.Kind
	}{
		{"truncated tag", &BackendInit{}, []byte{0x80}, errors.KindTruncated},
		{"truncated length", &BackendInit{}, []byte{0x0a, 0x05, 'a'}, errors.KindTruncated},
		{"string as varint", &BackendInit{}, appendVarintAlways(nil, 1, 7), errors.KindInvalidWireType},
		{"invalid utf8", &BackendInit{}, appendEmbedded(nil, 1, []byte{0xff, 0xfe}), errors.KindInvalidUTF8},
		{"uint32 overflow", &SchedTimingTodayOut{}, appendVarintAlways(nil, 1, 1<<40), errors.KindOverflow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertKind(t, tc.msg.Unmarshal(tc.data), tc.kind)
		})
	}
}

func TestPlainMessagesSkipUnknownFields(t *testing.T) {
	b := appendString(nil, 1, "/c")
	b = appendVarintAlways(b, 15, 1)
	b = appendString(b, 3, "/db")

	var got BackendInit
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.CollectionPath != "/c" || got.MediaDBPath != "/db" {
		t.Errorf("got %+v", got)
	}
}

func TestBackendErrorKeepsUnknownKind(t *testing.T) {
	var got BackendError
	if err := got.Unmarshal(appendEmbedded(nil, 42, appendString(nil, 1, "future"))); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Kind != 42 {
		t.Errorf("Kind = %v, want 42", got.Kind)
	}
	if got.Kind.String() != "error(42)" {
		t.Errorf("String() = %q", got.Kind.String())
	}
}

func TestCommandNames(t *testing.T) {
	if CommandSyncMedia.String() != "sync_media" {
		t.Errorf("String() = %q", CommandSyncMedia.String())
	}
	if !CommandRenderCard.Known() {
		t.Error("render_card should be known")
	}
	if Command(18).Known() {
		t.Error("field 18 is not a command")
	}
	if Command(18).String() != "command(18)" {
		t.Errorf("String() = %q", Command(18).String())
	}
}

func assertKind(t *testing.T, err error, kind errors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected *errors.Error, got %T: %v", err, err)
	}
	if e.Kind != kind {
		t.Errorf("Kind = %s, want %s (%v)", e.Kind, kind, err)
	}
}
