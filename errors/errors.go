package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode    Phase = "encode"    // Go to wire
	PhaseDecode    Phase = "decode"    // wire to Go
	PhaseDispatch  Phase = "dispatch"  // command envelope round trip
	PhaseProgress  Phase = "progress"  // progress callback delivery
	PhaseLifecycle Phase = "lifecycle" // backend open/close state
	PhaseEngine    Phase = "engine"    // opaque engine call
	PhaseLoad      Phase = "load"      // engine module loading
	PhaseTransport Phase = "transport" // remote engine framing
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindTruncated            Kind = "truncated"
	KindInvalidWireType      Kind = "invalid_wire_type"
	KindInvalidUTF8          Kind = "invalid_utf8"
	KindInvalidData          Kind = "invalid_data"
	KindOverflow             Kind = "overflow"
	KindTagCount             Kind = "tag_count"
	KindUnknownDiscriminant  Kind = "unknown_discriminant"
	KindDiscriminantMismatch Kind = "discriminant_mismatch"
	KindNotOpen              Kind = "not_open"
	KindClosed               Kind = "closed"
	KindConcurrentCall       Kind = "concurrent_call"
	KindEngineCall           Kind = "engine_call"
	KindMissingExport        Kind = "missing_export"
	KindInstantiation        Kind = "instantiation"
	KindInvalidInput         Kind = "invalid_input"
	KindNotFound             Kind = "not_found"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	GoType  string
	Message string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.Message != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.Message != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", message ")
			b.WriteString(e.Message)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("message ")
			b.WriteString(e.Message)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.Message != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Message sets the wire message name
func (b *Builder) Message(m string) *Builder {
	b.err.Message = m
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Truncated creates an error for a message that ends mid-field
func Truncated(phase Phase, message string, cause error) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTruncated,
		Message: message,
		Detail:  "unexpected end of message",
		Cause:   cause,
	}
}

// InvalidWireType creates an error for a field encoded with the wrong wire type
func InvalidWireType(phase Phase, message string, field int32, got int8) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindInvalidWireType,
		Message: message,
		Detail:  fmt.Sprintf("field %d has wire type %d", field, got),
		Value:   field,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// TagCount creates an error for a union carrying zero or several tags
func TagCount(phase Phase, message string, count int) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTagCount,
		Message: message,
		Detail:  fmt.Sprintf("union has %d tags set, want exactly 1", count),
		Value:   count,
	}
}

// UnknownDiscriminant creates an error for a union variant this version does not know
func UnknownDiscriminant(phase Phase, message string, disc any) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindUnknownDiscriminant,
		Message: message,
		Detail:  fmt.Sprintf("unknown variant %v", disc),
		Value:   disc,
	}
}

// DiscriminantMismatch creates an error for a response answering a different command
func DiscriminantMismatch(message string, want, got any) *Error {
	return &Error{
		Phase:   PhaseDispatch,
		Kind:    KindDiscriminantMismatch,
		Message: message,
		Detail:  fmt.Sprintf("response variant %v does not match command %v", got, want),
		Value:   got,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		GoType: targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsMalformedUnion reports whether err is a tag-count or unknown-discriminant error.
func IsMalformedUnion(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Kind == KindTagCount || e.Kind == KindUnknownDiscriminant
}

// Lifecycle package convenience constructors

// NotOpen creates an error for a command issued before the backend was opened
func NotOpen(component string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindNotOpen,
		Detail: fmt.Sprintf("%s is not open", component),
	}
}

// Closed creates an error for a command issued after the backend was closed
func Closed(component string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", component),
	}
}

// EngineCall wraps a failure of the opaque engine call itself
func EngineCall(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindEngineCall,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExport creates an error for an engine module lacking a required export
func MissingExport(name string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMissingExport,
		Detail: fmt.Sprintf("engine module does not export %q", name),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindInstantiation,
		Detail: "instantiate engine module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Transport creates a remote transport error
func Transport(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseTransport,
		Kind:   KindEngineCall,
		Detail: detail,
		Cause:  cause,
	}
}
