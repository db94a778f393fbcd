// Package errors provides the structured error taxonomy of the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (what went
// wrong). The five bridge kinds are Uninitialized, Attachment, ServiceNotFound,
// Marshal and RemoteInvocation; every layer returns exactly one of them and no
// layer retries.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindMarshal).
//		Path("createIncident", "title").
//		GoType("string").
//		Detail("embedded NUL at byte %d", 4).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ServiceNotFound(service, "")
//	err := errors.RemoteInvocation(service, op, "title must not be empty", cause)
//
// Sentinels match by kind regardless of phase:
//
//	if errors.Is(err, errors.ErrServiceNotFound) { ... }
package errors
