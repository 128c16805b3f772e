package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseDecode,
				Kind:    KindInvalidWireType,
				Path:    []string{"render_card", "question_nodes", "0"},
				GoType:  "string",
				Message: "RenderedTemplateNode",
				Detail:  "field 1 has wire type 0",
			},
			contains: []string{"[decode]", "invalid_wire_type", "render_card.question_nodes.0", "string", "RenderedTemplateNode", "field 1"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDispatch,
				Kind:  KindDiscriminantMismatch,
			},
			contains: []string{"[dispatch]", "discriminant_mismatch"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEngine,
				Kind:   KindEngineCall,
				Detail: "command",
				Cause:  errors.New("wasm trap"),
			},
			contains: []string{"[engine]", "engine_call", "command", "caused by", "wasm trap"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseDecode,
		Kind:  KindTruncated,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseDecode,
		Kind:  KindTagCount,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseDecode, Kind: KindTagCount}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseEncode, Kind: KindTagCount}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindUnknownDiscriminant}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseDecode, Kind: KindTagCount}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseDecode, KindUnknownDiscriminant).
		Path("progress", "media_sync").
		GoType("progress.MediaSyncProgress").
		Message("MediaSyncProgress").
		Value(9).
		Cause(cause).
		Detail("variant %d of %s", 9, "media_sync").
		Build()

	if err.Phase != PhaseDecode {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseDecode)
	}
	if err.Kind != KindUnknownDiscriminant {
		t.Errorf("Kind = %v, want %v", err.Kind, KindUnknownDiscriminant)
	}
	if len(err.Path) != 2 || err.Path[0] != "progress" || err.Path[1] != "media_sync" {
		t.Errorf("Path = %v, want [progress media_sync]", err.Path)
	}
	if err.GoType != "progress.MediaSyncProgress" {
		t.Errorf("GoType = %v", err.GoType)
	}
	if err.Message != "MediaSyncProgress" {
		t.Errorf("Message = %v", err.Message)
	}
	if err.Value != 9 {
		t.Errorf("Value = %v, want 9", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "variant 9 of media_sync" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("TagCount", func(t *testing.T) {
		err := TagCount(PhaseDecode, "BackendOutput", 2)
		if err.Kind != KindTagCount {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTagCount)
		}
		if !strings.Contains(err.Detail, "2 tags") {
			t.Errorf("Detail = %v, should contain count", err.Detail)
		}
	})

	t.Run("UnknownDiscriminant", func(t *testing.T) {
		err := UnknownDiscriminant(PhaseDecode, "AVTag", 7)
		if err.Kind != KindUnknownDiscriminant {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnknownDiscriminant)
		}
		if err.Value != 7 {
			t.Errorf("Value = %v, want 7", err.Value)
		}
	})

	t.Run("DiscriminantMismatch", func(t *testing.T) {
		err := DiscriminantMismatch("BackendOutput", "render_card", "strip_av_tags")
		if err.Phase != PhaseDispatch || err.Kind != KindDiscriminantMismatch {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		err := Truncated(PhaseDecode, "SyncMediaIn", errors.New("eof"))
		if err.Kind != KindTruncated {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTruncated)
		}
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		err := InvalidUTF8(PhaseDecode, []string{"text"}, []byte{0xff, 0xfe})
		if err.Kind != KindInvalidUTF8 {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidUTF8)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseEncode, []string{"ord"}, int64(1<<40), "uint32")
		if err.Kind != KindOverflow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOverflow)
		}
	})

	t.Run("lifecycle", func(t *testing.T) {
		if NotOpen("backend").Kind != KindNotOpen {
			t.Error("NotOpen kind")
		}
		if Closed("backend").Kind != KindClosed {
			t.Error("Closed kind")
		}
	})

	t.Run("MissingExport", func(t *testing.T) {
		err := MissingExport("bridge_command")
		if err.Phase != PhaseLoad || !strings.Contains(err.Detail, "bridge_command") {
			t.Errorf("unexpected error %v", err)
		}
	})
}

func TestIsMalformedUnion(t *testing.T) {
	if !IsMalformedUnion(TagCount(PhaseDecode, "Progress", 0)) {
		t.Error("tag count should be a malformed union")
	}
	if !IsMalformedUnion(Wrap(PhaseDispatch, KindInvalidData, UnknownDiscriminant(PhaseDecode, "AVTag", 3), "decode")) {
		t.Error("wrapped unknown discriminant should be a malformed union")
	}
	if IsMalformedUnion(Truncated(PhaseDecode, "AVTag", nil)) {
		t.Error("truncation is not a malformed union")
	}
	if IsMalformedUnion(errors.New("plain")) {
		t.Error("plain error is not a malformed union")
	}
}

func TestViolation(t *testing.T) {
	cause := UnknownDiscriminant(PhaseDecode, "BackendError", 99)

	defer func() {
		v, ok := AsViolation(recover())
		if !ok {
			t.Fatal("expected a *ContractViolation panic")
		}
		if v.Err != cause {
			t.Errorf("Err = %v, want %v", v.Err, cause)
		}
		if !errors.Is(v, &Error{Phase: PhaseDecode, Kind: KindUnknownDiscriminant}) {
			t.Error("violation should unwrap to the structured error")
		}
		if !strings.HasPrefix(v.Error(), "internal contract violation") {
			t.Errorf("Error() = %q", v.Error())
		}
	}()

	Violation(cause)
	t.Fatal("Violation returned")
}

func TestAsViolation_OtherPanics(t *testing.T) {
	if _, ok := AsViolation("boom"); ok {
		t.Error("string panic is not a violation")
	}
	if _, ok := AsViolation(nil); ok {
		t.Error("nil is not a violation")
	}
}
