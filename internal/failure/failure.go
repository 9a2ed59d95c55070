// Package failure holds the error taxonomy shared by the ingestion pipeline.
//
// Every error that crosses a component boundary is either a *Error or wraps one, so
// callers can branch on the Kind with errors.Is against the sentinels below. Messages
// are written by the constructing component and must never carry cookie values,
// passwords or API tokens.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidCredentials is fatal and needs operator action.
	KindInvalidCredentials
	// KindAuthenticationIncomplete means a verification challenge was not completed in time.
	KindAuthenticationIncomplete
	KindTransientNetwork
	KindEnrichmentUnavailable
	// KindIntegrityViolation indicates a logic bug, it is never expected in normal operation.
	KindIntegrityViolation
	KindNotFound
	// KindSessionInvalid is raised by extraction when the target rejects the session
	// mid-flight, the orchestrator handles it and it never reaches callers.
	KindSessionInvalid
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindAuthenticationIncomplete:
		return "authentication_incomplete"
	case KindTransientNetwork:
		return "transient_network_error"
	case KindEnrichmentUnavailable:
		return "enrichment_unavailable"
	case KindIntegrityViolation:
		return "integrity_violation"
	case KindNotFound:
		return "not_found"
	case KindSessionInvalid:
		return "session_invalid"
	}
	return "unknown"
}

var (
	ErrInvalidCredentials       = &Error{Kind: KindInvalidCredentials}
	ErrAuthenticationIncomplete = &Error{Kind: KindAuthenticationIncomplete}
	ErrTransientNetwork         = &Error{Kind: KindTransientNetwork}
	ErrEnrichmentUnavailable    = &Error{Kind: KindEnrichmentUnavailable}
	ErrIntegrityViolation       = &Error{Kind: KindIntegrityViolation}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrSessionInvalid           = &Error{Kind: KindSessionInvalid}
)

// Error is a typed failure. Op names the operation that failed ("session.acquire",
// "store.replace-children") and Message is a safe, human readable description.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	cause   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same kind, this is what makes the sentinels work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a failure of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates a failure of the given kind that unwraps to cause. The cause's own
// message is not part of Error(), callers that log it are expected to know it is safe.
func Wrap(kind Kind, op string, cause error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain. Context deadlines and
// network errors are classified as transient even when nothing wrapped them.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransientNetwork
	}
	return KindUnknown
}

// IsTransient reports whether err may succeed if the operation is attempted again.
// Caller cancellation is never transient.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) == KindTransientNetwork
}

// IsAuthentication reports whether err means no usable session could be produced.
func IsAuthentication(err error) bool {
	kind := KindOf(err)
	return kind == KindInvalidCredentials || kind == KindAuthenticationIncomplete
}
