package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the coordinator the error occurred
type Phase string

const (
	PhaseInit     Phase = "init"     // module initialization inside the context
	PhaseRun      Phase = "run"      // module computation inside the context
	PhaseHost     Phase = "host"     // controller side, never crosses the boundary
	PhaseProtocol Phase = "protocol" // message encoding/decoding
	PhaseContext  Phase = "context"  // execution context lifecycle
	PhaseLoad     Phase = "load"     // module asset loading
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseStore    Phase = "store"    // run history persistence
)

// Kind categorizes the error
type Kind string

const (
	KindInitFault      Kind = "init_fault"
	KindRunFault       Kind = "run_fault"
	KindProtocolMisuse Kind = "protocol_misuse"
	KindContextLost    Kind = "context_lost"
	KindInvalidData    Kind = "invalid_data"
	KindInvalidInput   Kind = "invalid_input"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindInstantiation  Kind = "instantiation"
)

// Sentinels for errors.Is. They carry no phase, so they match any phase.
var (
	ErrInitFault      = &Error{Kind: KindInitFault}
	ErrRunFault       = &Error{Kind: KindRunFault}
	ErrProtocolMisuse = &Error{Kind: KindProtocolMisuse}
	ErrContextLost    = &Error{Kind: KindContextLost}
)

// Error is the structured error type used throughout the module
type Error struct {
	Cause     error
	Phase     Phase
	Kind      Kind
	RequestID string
	Detail    string
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

	if e.RequestID != "" {
		b.WriteString(" (request ")
		b.WriteString(e.RequestID)
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
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
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
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

// Request sets the correlated request id
func (b *Builder) Request(id string) *Builder {
	b.err.RequestID = id
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

// Message returns the caller-visible text of err: the detail of a structured
// error followed by its cause, or the plain error string otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if As(err, &e) && e.Detail != "" {
		if e.Cause != nil {
			return e.Detail + ": " + e.Cause.Error()
		}
		return e.Detail
	}
	return err.Error()
}

// KindOf returns the kind of the first structured error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return ""
}

// Convenience constructors for the coordinator taxonomy

// InitFault creates an initialization fault carrying the fault text
func InitFault(reason string) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindInitFault,
		Detail: reason,
	}
}

// RunFault creates a computation fault for a request
func RunFault(requestID, reason string) *Error {
	return &Error{
		Phase:     PhaseRun,
		Kind:      KindRunFault,
		RequestID: requestID,
		Detail:    reason,
	}
}

// ProtocolMisuse creates a locally detected misuse error
func ProtocolMisuse(detail string) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindProtocolMisuse,
		Detail: detail,
	}
}

// ContextLost creates an error for work abandoned by context termination
func ContextLost(requestID, detail string) *Error {
	return &Error{
		Phase:     PhaseContext,
		Kind:      KindContextLost,
		RequestID: requestID,
		Detail:    detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
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

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
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

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
