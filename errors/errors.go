package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which layer operation produced the error
type Phase string

const (
	PhaseRuntime  Phase = "runtime"  // runtime create/dispose
	PhaseContext  Phase = "context"  // context create/activate
	PhaseGuard    Phase = "guard"    // guard validation
	PhaseValue    Phase = "value"    // value creation and conversion
	PhaseProperty Phase = "property" // property id and property access
	PhaseScript   Phase = "script"   // script execution
	PhaseCall     Phase = "call"     // function call and trampoline dispatch
	PhaseExternal Phase = "external" // external data attach/sever
	PhaseFinalize Phase = "finalize" // collector finalization
	PhaseConfig   Phase = "config"   // configuration parsing
	PhaseHost     Phase = "host"     // host function registration and binding
)

// Kind categorizes the error
type Kind string

const (
	KindEngine          Kind = "engine"           // non-zero engine status
	KindScriptException Kind = "script_exception" // script threw a value
	KindFatal           Kind = "fatal"            // engine in unrecoverable state
	KindGuardReleased   Kind = "guard_released"
	KindGuardNotCurrent Kind = "guard_not_current"
	KindGuardOrder      Kind = "guard_order"
	KindContextMismatch Kind = "context_mismatch"
	KindDisposed        Kind = "disposed"
	KindCallback        Kind = "callback" // host callback failed at the engine boundary
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindTypeMismatch    Kind = "type_mismatch"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Op       string // engine table operation, e.g. "RunScript"
	CodeName string
	Detail   string
	Code     uint32 // engine status code, 0 when not an engine failure
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Code != 0 {
		b.WriteString(": status ")
		if e.CodeName != "" {
			b.WriteString(e.CodeName)
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "(0x%x)", e.Code)
	}

	if e.Detail != "" {
		if e.Code != 0 {
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

// Is reports whether target matches this error.
// Kind must match; Phase and Code only when the target sets them.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	if t.Phase != "" && e.Phase != t.Phase {
		return false
	}
	if t.Code != 0 && e.Code != t.Code {
		return false
	}
	return true
}

// Sentinels for errors.Is. Phase is left empty so they match any phase.
var (
	ErrGuardReleased   = &Error{Kind: KindGuardReleased, Detail: "guard already released"}
	ErrGuardNotCurrent = &Error{Kind: KindGuardNotCurrent, Detail: "guard context is not the current context"}
	ErrGuardOrder      = &Error{Kind: KindGuardOrder, Detail: "guards released out of order"}
	ErrContextMismatch = &Error{Kind: KindContextMismatch, Detail: "value belongs to another context"}
	ErrDisposed        = &Error{Kind: KindDisposed, Detail: "runtime disposed"}
	ErrFatal           = &Error{Kind: KindFatal}
	ErrScriptException = &Error{Kind: KindScriptException}
)

// IsGuardMisuse reports whether err was raised because an operation ran
// without a matching active context.
func IsGuardMisuse(err error) bool {
	var e *Error
	if !As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindGuardReleased, KindGuardNotCurrent, KindGuardOrder, KindContextMismatch, KindDisposed:
		return true
	}
	return false
}

// IsFatal reports whether err signals an unrecoverable engine state.
func IsFatal(err error) bool {
	return Is(err, ErrFatal)
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

// Op sets the engine operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Code sets the engine status code and its symbolic name
func (b *Builder) Code(code uint32, name string) *Builder {
	b.err.Code = code
	b.err.CodeName = name
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

// Engine creates an error for a non-zero engine status
func Engine(phase Phase, op string, code uint32, name string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindEngine,
		Op:       op,
		Code:     code,
		CodeName: name,
	}
}

// Fatal creates an unrecoverable engine error
func Fatal(phase Phase, op string, code uint32, name string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindFatal,
		Op:       op,
		Code:     code,
		CodeName: name,
	}
}

// GuardReleased creates an error for use of a released guard
func GuardReleased(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindGuardReleased,
		Detail: ErrGuardReleased.Detail,
	}
}

// GuardNotCurrent creates an error for a guard whose context lost the current slot
func GuardNotCurrent(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindGuardNotCurrent,
		Detail: ErrGuardNotCurrent.Detail,
	}
}

// ContextMismatch creates an error for a value or context used under a foreign guard
func ContextMismatch(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindContextMismatch,
		Detail: fmt.Sprintf("%s belongs to another context", what),
	}
}

// Disposed creates an error for use after runtime disposal
func Disposed(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDisposed,
		Detail: ErrDisposed.Detail,
	}
}

// Callback creates an error for a host callback failure
func Callback(cause error, detail string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindCallback,
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

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
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
