package backend

import (
	"context"
	stderrors "errors"
	"math"
	"reflect"
	"strconv"
	"sync"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/anki-bridge/enginetest"
	"github.com/wippyai/anki-bridge/errors"
	"github.com/wippyai/anki-bridge/progress"
	"github.com/wippyai/anki-bridge/wire"
)

func openTest(t *testing.T, eng *enginetest.Engine, opts ...Option) *Backend {
	t.Helper()
	b, err := Open(context.Background(), eng, Paths{
		CollectionPath:  "/c/collection.anki2",
		MediaFolderPath: "/c/collection.media",
		MediaDBPath:     "/c/collection.media.db2",
	}, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

func rawEngine(resp []byte) *enginetest.Engine {
	return enginetest.New(enginetest.WithRaw(func(context.Context, []byte) ([]byte, error) {
		return resp, nil
	}))
}

func marshalOutput(t *testing.T, out *wire.BackendOutput) []byte {
	t.Helper()
	b, err := out.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return b
}

func expectViolation(t *testing.T, kind errors.Kind, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		v, ok := errors.AsViolation(recover())
		if !ok {
			t.Fatalf("expected a %s contract violation", kind)
		}
		if v.Err.Kind != kind {
			t.Errorf("violation kind = %s, want %s (%v)", v.Err.Kind, kind, v)
		}
	}()
	fn()
}

func TestOpenSendsPaths(t *testing.T) {
	eng := enginetest.New()
	openTest(t, eng)

	sessions := eng.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	want := wire.BackendInit{
		CollectionPath:  "/c/collection.anki2",
		MediaFolderPath: "/c/collection.media",
		MediaDBPath:     "/c/collection.media.db2",
	}
	if got := sessions[0].Init(); got != want {
		t.Errorf("Init = %+v, want %+v", got, want)
	}
}

func TestOpenFailure(t *testing.T) {
	eng := enginetest.New(enginetest.WithOpenError(stderrors.New("no such file")))
	_, err := Open(context.Background(), eng, Paths{})
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Phase != errors.PhaseEngine {
		t.Fatalf("Open error = %v, want engine phase error", err)
	}
}

func TestExtractAVTags(t *testing.T) {
	b := openTest(t, enginetest.New())

	text, tags, err := b.ExtractAVTags(context.Background(), "Hello [sound:a.mp3]", true)
	if err != nil {
		t.Fatalf("ExtractAVTags: %v", err)
	}
	if text != "Hello " {
		t.Errorf("text = %q, want %q", text, "Hello ")
	}
	if want := []AVTag{SoundOrVideoTag{Filename: "a.mp3"}}; !reflect.DeepEqual(tags, want) {
		t.Errorf("tags = %#v, want %#v", tags, want)
	}
}

func TestExtractAVTagsTTSListsNeverNil(t *testing.T) {
	eng := enginetest.New(enginetest.WithHandler(wire.CommandExtractAVTags,
		func(context.Context, *enginetest.Call) (wire.Output, *wire.BackendError) {
			return &wire.ExtractAVTagsOut{AVTags: []*wire.AVTag{{Value: &wire.TTSTag{FieldText: "hi", Lang: "ja_JP"}}}}, nil
		}))
	b := openTest(t, eng)

	_, tags, err := b.ExtractAVTags(context.Background(), "", false)
	if err != nil {
		t.Fatal(err)
	}
	tts, ok := tags[0].(TTSTag)
	if !ok {
		t.Fatalf("tag = %T, want TTSTag", tags[0])
	}
	if tts.Voices == nil || tts.OtherArgs == nil {
		t.Errorf("Voices/OtherArgs must be empty lists, got %#v / %#v", tts.Voices, tts.OtherArgs)
	}
}

func TestAddFileToMediaFolderDistinctNames(t *testing.T) {
	b := openTest(t, enginetest.New())
	ctx := context.Background()

	first, err := b.AddFileToMediaFolder(ctx, "dup.jpg", []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.AddFileToMediaFolder(ctx, "dup.jpg", []byte("two"))
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("both files stored as %q", first)
	}
}

func TestTemplateRequirementsSorted(t *testing.T) {
	eng := enginetest.New(enginetest.WithHandler(wire.CommandTemplateRequirements,
		func(context.Context, *enginetest.Call) (wire.Output, *wire.BackendError) {
			return &wire.TemplateRequirementsOut{Requirements: []*wire.TemplateRequirement{
				{Value: &wire.RequirementAny{Ords: []uint32{3, 1, 2}}},
				{Value: &wire.RequirementAll{Ords: []uint32{2, 0}}},
				{Value: &wire.RequirementNone{}},
			}}, nil
		}))
	b := openTest(t, eng)

	got, err := b.TemplateRequirements(context.Background(), []string{"a", "b", "c"}, map[string]int{"Front": 0})
	if err != nil {
		t.Fatal(err)
	}
	want := []TemplateRequirement{
		{Index: 0, Kind: RequirementAny, Ords: []int{1, 2, 3}},
		{Index: 1, Kind: RequirementAll, Ords: []int{0, 2}},
		{Index: 2, Kind: RequirementNone, Ords: []int{}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestTemplateRequirementsNoneDropsOrds(t *testing.T) {
	// {template_requirements: {requirements: [{none: {ords: [5, 2]}}]}}
	ords := protowire.AppendTag(nil, 1, protowire.BytesType)
	ords = protowire.AppendBytes(ords, []byte{5, 2})
	req := protowire.AppendTag(nil, 3, protowire.BytesType)
	req = protowire.AppendBytes(req, ords)
	out := protowire.AppendTag(nil, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, req)
	resp := protowire.AppendTag(nil, protowire.Number(wire.CommandTemplateRequirements), protowire.BytesType)
	resp = protowire.AppendBytes(resp, out)

	b := openTest(t, rawEngine(resp))
	got, err := b.TemplateRequirements(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Kind != RequirementNone || got[0].Ords == nil || len(got[0].Ords) != 0 {
		t.Errorf("got %#v, want one none requirement with empty ords", got)
	}
}

func TestTemplateRequirementsRejectsNegativeOrdinal(t *testing.T) {
	b := openTest(t, enginetest.New())
	_, err := b.TemplateRequirements(context.Background(), []string{"{{F}}"}, map[string]int{"F": -1})
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindOverflow {
		t.Fatalf("err = %v, want overflow", err)
	}
}

func TestCommandsRoundTrip(t *testing.T) {
	eng := enginetest.New(enginetest.WithHandler(wire.CommandLocalMinutesWest,
		func(context.Context, *enginetest.Call) (wire.Output, *wire.BackendError) {
			return wire.LocalMinutesWestOut(-600), nil
		}))
	b := openTest(t, eng)
	ctx := context.Background()

	mins, err := b.LocalMinutesWest(ctx, 1_700_000_000)
	if err != nil || mins != -600 {
		t.Errorf("LocalMinutesWest = %d, %v", mins, err)
	}

	stripped, err := b.StripAVTags(ctx, "a[sound:b.mp3]c")
	if err != nil || stripped != "ac" {
		t.Errorf("StripAVTags = %q, %v", stripped, err)
	}

	expanded, err := b.ExpandClozesToRevealLatex(ctx, "{{c1::$x$}}")
	if err != nil || expanded != "$x$" {
		t.Errorf("ExpandClozesToRevealLatex = %q, %v", expanded, err)
	}

	timing, err := b.SchedTimingToday(ctx, 1577836800, 0, 1577836800+86400*3, 0, 0)
	if err != nil || timing.DaysElapsed != 3 {
		t.Errorf("SchedTimingToday = %+v, %v", timing, err)
	}

	q, a, err := b.RenderCard(ctx, "{{Front}}", "{{FrontSide}}|{{text:Back}}", map[string]string{"Front": "f", "Back": "b"}, 0)
	if err != nil {
		t.Fatalf("RenderCard: %v", err)
	}
	wantQ := []TemplateNode{&TemplateReplacement{FieldName: "Front", CurrentText: "f", Filters: []string{}}}
	wantA := []TemplateNode{
		&TemplateReplacement{FieldName: "FrontSide", CurrentText: "f", Filters: []string{}},
		TemplateText("|"),
		&TemplateReplacement{FieldName: "Back", CurrentText: "b", Filters: []string{"text"}},
	}
	if !reflect.DeepEqual(q, wantQ) {
		t.Errorf("question = %#v", q)
	}
	if !reflect.DeepEqual(a, wantA) {
		t.Errorf("answer = %#v", a)
	}

	want := []wire.Command{
		wire.CommandLocalMinutesWest,
		wire.CommandStripAVTags,
		wire.CommandExpandClozesToRevealLatex,
		wire.CommandSchedTimingToday,
		wire.CommandRenderCard,
	}
	if got := eng.Sessions()[0].Commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestRenderCardOrdinalOverflow(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("int cannot exceed int32")
	}
	b := openTest(t, enginetest.New())
	ord := int64(math.MaxInt32) + 1
	if _, _, err := b.RenderCard(context.Background(), "", "", nil, int(ord)); err == nil {
		t.Error("expected an overflow error")
	}
}

func TestEngineErrorsClassified(t *testing.T) {
	tests := []struct {
		wire     wire.BackendError
		sentinel *Error
		message  string
		qSide    bool
	}{
		{wire.BackendError{Kind: wire.ErrorInterrupted}, ErrInterrupted, "interrupted", false},
		{wire.BackendError{Kind: wire.ErrorNetwork, Info: "connection reset"}, ErrNetwork, "connection reset", false},
		{wire.BackendError{Kind: wire.ErrorIO, Info: "disk full"}, ErrIO, "disk full", false},
		{wire.BackendError{Kind: wire.ErrorDB, Info: "database is locked"}, ErrDB, "database is locked", false},
		{wire.BackendError{Kind: wire.ErrorTemplateParse, Info: "bad tag", QSide: true}, ErrTemplateParse, "bad tag", true},
		{wire.BackendError{Kind: wire.ErrorTemplateParse, Info: "bad answer"}, ErrTemplateParse, "bad answer", false},
		{wire.BackendError{Kind: wire.ErrorInvalidInput, Info: "  odd  spacing\n"}, ErrInvalidInput, "  odd  spacing\n", false},
		{wire.BackendError{Kind: wire.ErrorAnkiWebAuthFailed}, ErrAnkiWebAuthFailed, "ankiweb authentication failed", false},
		{wire.BackendError{Kind: wire.ErrorAnkiWebMisc, Info: "server busy"}, ErrAnkiWebMisc, "server busy", false},
	}

	for _, tc := range tests {
		t.Run(tc.wire.Kind.String(), func(t *testing.T) {
			failure := tc.wire
			b := openTest(t, rawEngine(marshalOutput(t, &wire.BackendOutput{Error: &failure})))

			_, err := b.StripAVTags(context.Background(), "x")
			if !stderrors.Is(err, tc.sentinel) {
				t.Fatalf("err = %v, want match for %v", err, tc.sentinel)
			}
			if err.Error() != tc.message {
				t.Errorf("message = %q, want %q", err.Error(), tc.message)
			}
			var e *Error
			if !stderrors.As(err, &e) {
				t.Fatalf("err is %T, want *Error", err)
			}
			if e.QuestionSide() != tc.qSide {
				t.Errorf("QuestionSide = %v, want %v", e.QuestionSide(), tc.qSide)
			}
			if KindOf(err) != tc.sentinel.Kind {
				t.Errorf("KindOf = %v", KindOf(err))
			}
		})
	}
}

func TestSentinelsDistinct(t *testing.T) {
	err := error(&Error{Kind: KindIO, Info: "x"})
	if stderrors.Is(err, ErrDB) {
		t.Error("io error matched ErrDB")
	}
	if IsInterrupted(err) {
		t.Error("io error reported as interrupted")
	}
	if KindOf(stderrors.New("plain")) != 0 {
		t.Error("KindOf of a foreign error should be 0")
	}
}

func TestUnknownErrorKindIsViolation(t *testing.T) {
	b := openTest(t, rawEngine(marshalOutputRaw(99)))
	expectViolation(t, errors.KindUnknownDiscriminant, func() {
		_, _ = b.StripAVTags(context.Background(), "x")
	})
}

// marshalOutputRaw builds a BackendOutput whose error carries an unknown kind.
func marshalOutputRaw(kind protowire.Number) []byte {
	inner := protowire.AppendTag(nil, kind, protowire.BytesType)
	inner = protowire.AppendBytes(inner, nil)
	out := protowire.AppendTag(nil, 2047, protowire.BytesType)
	return protowire.AppendBytes(out, inner)
}

func TestMalformedResponsesAreViolations(t *testing.T) {
	unknownVariant := protowire.AppendTag(nil, 99, protowire.BytesType)
	unknownVariant = protowire.AppendBytes(unknownVariant, nil)

	twoTags := marshalOutput(t, &wire.BackendOutput{Result: wire.StripAVTagsOut("a")})
	twoTags = append(twoTags, marshalOutput(t, &wire.BackendOutput{Error: &wire.BackendError{Kind: wire.ErrorIO}})...)

	badNode := protowire.AppendTag(nil, 3, protowire.BytesType)
	badNode = protowire.AppendBytes(badNode, nil)

	tests := []struct {
		name string
		resp []byte
		kind errors.Kind
		call func(b *Backend)
	}{
		{"empty response", nil, errors.KindTagCount, stripCall},
		{"unknown variant", unknownVariant, errors.KindUnknownDiscriminant, stripCall},
		{"result and error", twoTags, errors.KindTagCount, stripCall},
		{"wrong command", marshalOutput(t, &wire.BackendOutput{Result: wire.ExpandClozesOut("x")}), errors.KindDiscriminantMismatch, stripCall},
		{"truncated", []byte{0xba, 0x01, 0x05}, errors.KindTruncated, stripCall},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := openTest(t, rawEngine(tc.resp))
			expectViolation(t, tc.kind, func() { tc.call(b) })
		})
	}
}

func stripCall(b *Backend) {
	_, _ = b.StripAVTags(context.Background(), "x")
}

func TestEngineCallFailureIsReturned(t *testing.T) {
	eng := enginetest.New(enginetest.WithRaw(func(context.Context, []byte) ([]byte, error) {
		return nil, stderrors.New("guest trapped")
	}))
	b := openTest(t, eng)

	_, err := b.StripAVTags(context.Background(), "x")
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("err = %v, want *errors.Error", err)
	}
	if e.Phase != errors.PhaseEngine || e.Kind != errors.KindEngineCall {
		t.Errorf("err = %v, want engine_call", err)
	}
	if KindOf(err) != 0 {
		t.Error("transport failures must not be classified")
	}

	// The dispatcher is usable again after a failed call.
	if _, err := b.StripAVTags(context.Background(), "x"); err == nil {
		t.Error("second call should fail the same way")
	}
}

func TestLifecycle(t *testing.T) {
	t.Run("zero value", func(t *testing.T) {
		var b Backend
		expectViolation(t, errors.KindNotOpen, func() { stripCall(&b) })
		if err := b.Close(context.Background()); err != nil {
			t.Errorf("Close of unopened backend: %v", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		eng := enginetest.New()
		b := openTest(t, eng)
		if err := b.Close(context.Background()); err != nil {
			t.Fatal(err)
		}
		if !eng.Sessions()[0].Closed() {
			t.Error("engine session not closed")
		}
		if err := b.Close(context.Background()); err != nil {
			t.Errorf("second Close: %v", err)
		}
		expectViolation(t, errors.KindClosed, func() { stripCall(b) })
	})
}

func TestSyncMediaProgress(t *testing.T) {
	var events []progress.Event
	b := openTest(t, enginetest.New(), WithProgressObserver(func(ev progress.Event) bool {
		events = append(events, ev)
		return true
	}))

	err := b.SyncMedia(context.Background(), MediaSyncAuth{HKey: "k", Endpoint: "https://sync.example/"})
	if err != nil {
		t.Fatalf("SyncMedia: %v", err)
	}
	var got []progress.MediaSyncProgress
	for _, ev := range events {
		got = append(got, ev.MediaSync)
	}
	if !reflect.DeepEqual(got, enginetest.DefaultSyncSteps) {
		t.Errorf("progress = %v, want %v", got, enginetest.DefaultSyncSteps)
	}
}

func TestSyncMediaInterrupted(t *testing.T) {
	calls := 0
	b := openTest(t, enginetest.New(), WithProgressObserver(func(progress.Event) bool {
		calls++
		return false
	}))

	err := b.SyncMedia(context.Background(), MediaSyncAuth{HKey: "k", Endpoint: "https://sync.example/"})
	if err != nil && !IsInterrupted(err) {
		t.Fatalf("SyncMedia = %v, want nil or interrupted", err)
	}
	if err == nil {
		t.Fatal("the test engine honors interruption, expected an error")
	}
	if calls != 1 {
		t.Errorf("observer calls = %d, want 1", calls)
	}
}

func TestSyncMediaAuthFailure(t *testing.T) {
	b := openTest(t, enginetest.New())
	err := b.SyncMedia(context.Background(), MediaSyncAuth{Endpoint: "https://sync.example/"})
	if !stderrors.Is(err, ErrAnkiWebAuthFailed) {
		t.Fatalf("err = %v, want auth failure", err)
	}
}

func TestUndecodableProgressIsViolation(t *testing.T) {
	eng := enginetest.New(enginetest.WithHandler(wire.CommandSyncMedia,
		func(_ context.Context, call *enginetest.Call) (wire.Output, *wire.BackendError) {
			call.RawProgress([]byte{0x12, 0x00})
			return wire.SyncMediaOut{}, nil
		}))
	b := openTest(t, eng)

	expectViolation(t, errors.KindUnknownDiscriminant, func() {
		_ = b.SyncMedia(context.Background(), MediaSyncAuth{HKey: "k", Endpoint: "e"})
	})
}

// recordingLock is a mutex that records whether it is held.
type recordingLock struct {
	mu     sync.Mutex
	held   bool
	events []string
}

func (l *recordingLock) Lock() {
	l.mu.Lock()
	l.held = true
	l.events = append(l.events, "lock")
}

func (l *recordingLock) Unlock() {
	l.held = false
	l.events = append(l.events, "unlock")
	l.mu.Unlock()
}

func TestHostLockReleasedForLongRunningOnly(t *testing.T) {
	lock := &recordingLock{}
	var heldDuringSync, heldDuringStrip bool

	eng := enginetest.New(
		enginetest.WithHandler(wire.CommandSyncMedia,
			func(context.Context, *enginetest.Call) (wire.Output, *wire.BackendError) {
				heldDuringSync = !lock.mu.TryLock()
				if !heldDuringSync {
					lock.mu.Unlock()
				}
				return wire.SyncMediaOut{}, nil
			}),
		enginetest.WithHandler(wire.CommandStripAVTags,
			func(context.Context, *enginetest.Call) (wire.Output, *wire.BackendError) {
				heldDuringStrip = lock.held
				return wire.StripAVTagsOut(""), nil
			}),
	)
	b := openTest(t, eng, WithHostLock(lock))
	ctx := context.Background()

	lock.Lock()
	if err := b.SyncMedia(ctx, MediaSyncAuth{}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.StripAVTags(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	lock.Unlock()

	if heldDuringSync {
		t.Error("host lock held during long-running command")
	}
	if !heldDuringStrip {
		t.Error("host lock released during short command")
	}
	if want := []string{"lock", "unlock", "lock", "unlock"}; !reflect.DeepEqual(lock.events, want) {
		t.Errorf("lock events = %v, want %v", lock.events, want)
	}
	if got := eng.Sessions()[0].LongRunning(); !reflect.DeepEqual(got, []bool{true, false}) {
		t.Errorf("long-running flags = %v", got)
	}
}

func TestConcurrentCallIsViolation(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	eng := enginetest.New(enginetest.WithHandler(wire.CommandStripAVTags,
		func(context.Context, *enginetest.Call) (wire.Output, *wire.BackendError) {
			close(entered)
			<-release
			return wire.StripAVTagsOut(""), nil
		}))
	b := openTest(t, eng)

	done := make(chan error, 1)
	go func() {
		_, err := b.StripAVTags(context.Background(), "first")
		done <- err
	}()
	<-entered

	expectViolation(t, errors.KindConcurrentCall, func() {
		_, _ = b.ExpandClozesToRevealLatex(context.Background(), "second")
	})

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first call: %v", err)
	}
}
