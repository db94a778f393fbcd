package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap" // loader and handle
	PhaseAttach    Phase = "attach"    // attachment registration
	PhaseResolve   Phase = "resolve"   // service and operation lookup
	PhaseEncode    Phase = "encode"    // Go to guest
	PhaseDecode    Phase = "decode"    // guest to Go
	PhaseInvoke    Phase = "invoke"    // guest execution
	PhaseLoad      Phase = "load"      // module compilation
	PhaseHost      Phase = "host"      // host module registration
	PhaseParse     Phase = "parse"     // WIT signature parsing
)

// Kind categorizes the error
type Kind string

const (
	KindUninitialized    Kind = "uninitialized"
	KindAttachment       Kind = "attachment"
	KindServiceNotFound  Kind = "service_not_found"
	KindMarshal          Kind = "marshal"
	KindRemoteInvocation Kind = "remote_invocation"
	KindInvalidInput     Kind = "invalid_input"
	KindInvalidData      Kind = "invalid_data"
)

// Sentinels for errors.Is; each matches any *Error of the same kind.
var (
	ErrUninitialized    = &Error{Kind: KindUninitialized}
	ErrAttachment       = &Error{Kind: KindAttachment}
	ErrServiceNotFound  = &Error{Kind: KindServiceNotFound}
	ErrMarshal          = &Error{Kind: KindMarshal}
	ErrRemoteInvocation = &Error{Kind: KindRemoteInvocation}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Service   string
	Operation string
	GoType    string
	Detail    string
	Path      []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Service != "" {
		b.WriteString(" ")
		b.WriteString(e.Service)
		if e.Operation != "" {
			b.WriteByte('.')
			b.WriteString(e.Operation)
		}
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
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
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Phase == "" || e.Phase == t.Phase
}

// Message returns the detail without phase and kind decoration.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return string(e.Kind)
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As is errors.As re-exported so callers need a single errors import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is re-exported so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
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

// Path sets the argument path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Target sets the service and operation
func (b *Builder) Target(service, operation string) *Builder {
	b.err.Service = service
	b.err.Operation = operation
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
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

// Convenience constructors for the bridge taxonomy

// Uninitialized creates the error raised when the handle is used before bootstrap.
func Uninitialized(what string) *Error {
	return &Error{
		Phase:  PhaseBootstrap,
		Kind:   KindUninitialized,
		Detail: fmt.Sprintf("%s not initialized; the host loader must call OnLoad first", what),
	}
}

// Attachment creates an attachment registration error.
func Attachment(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseAttach,
		Kind:   KindAttachment,
		Detail: detail,
		Cause:  cause,
	}
}

// ServiceNotFound creates an error for an unresolvable service or operation.
// An empty operation means the service itself is missing.
func ServiceNotFound(service, operation string) *Error {
	detail := fmt.Sprintf("service %q not found", service)
	if operation != "" {
		detail = fmt.Sprintf("operation %q not found on service %q", operation, service)
	}
	return &Error{
		Phase:     PhaseResolve,
		Kind:      KindServiceNotFound,
		Service:   service,
		Operation: operation,
		Detail:    detail,
	}
}

// SignatureMismatch creates a not-found error for an export whose core type
// differs from the declared signature.
func SignatureMismatch(service, operation, want, got string) *Error {
	return &Error{
		Phase:     PhaseResolve,
		Kind:      KindServiceNotFound,
		Service:   service,
		Operation: operation,
		Detail:    fmt.Sprintf("operation %q has core type %s, declared %s", operation, got, want),
	}
}

// Marshal creates a marshalling error.
func Marshal(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMarshal,
		Path:   path,
		Detail: detail,
	}
}

// EmbeddedNUL creates the error for strings that cannot cross a NUL-terminated boundary.
func EmbeddedNUL(path []string, index int) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindMarshal,
		Path:   path,
		GoType: "string",
		Detail: fmt.Sprintf("embedded NUL at byte %d is not representable", index),
		Value:  index,
	}
}

// InvalidUTF8 creates an invalid UTF-8 marshalling error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindMarshal,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// OutOfBounds creates a marshalling error for guest memory access past its end.
func OutOfBounds(phase Phase, path []string, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMarshal,
		Path:   path,
		Detail: fmt.Sprintf("offset %d out of bounds (memory size %d)", offset, length),
		Value:  offset,
	}
}

// StaleReference creates the error for a reference used outside its attachment scope.
func StaleReference(path []string, detail string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindMarshal,
		Path:   path,
		Detail: "stale object reference: " + detail,
	}
}

// RemoteInvocation creates an error for a guest operation that raised or trapped.
func RemoteInvocation(service, operation, message string, cause error) *Error {
	return &Error{
		Phase:     PhaseInvoke,
		Kind:      KindRemoteInvocation,
		Service:   service,
		Operation: operation,
		Detail:    message,
		Cause:     cause,
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

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
