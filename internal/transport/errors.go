// Package transport provides the authenticated HTTP client used by every
// outbound call of the raffle application. It attaches credentials, classifies
// failures, retries transient errors with exponential backoff, and coordinates
// a single credential refresh across all concurrently failing calls.
package transport

import (
	"errors"
	"fmt"
)

// Kind is the failure taxonomy used to decide how a failed call is handled.
type Kind int

const (
	KindUnclassified Kind = iota
	KindNetworkUnreachable
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindValidationFailed
	KindServerFault
)

func (k Kind) String() string {
	switch k {
	case KindNetworkUnreachable:
		return "network_unreachable"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidationFailed:
		return "validation_failed"
	case KindServerFault:
		return "server_fault"
	default:
		return "unclassified"
	}
}

// Sentinel errors, one per Kind. Use errors.Is(err, transport.ErrNotFound).
var (
	ErrUnclassified       = errors.New("transport: unclassified failure")
	ErrNetworkUnreachable = errors.New("transport: network unreachable")
	ErrUnauthenticated    = errors.New("transport: unauthenticated")
	ErrForbidden          = errors.New("transport: forbidden")
	ErrNotFound           = errors.New("transport: not found")
	ErrValidationFailed   = errors.New("transport: validation failed")
	ErrServerFault        = errors.New("transport: server fault")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNetworkUnreachable:
		return ErrNetworkUnreachable
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindValidationFailed:
		return ErrValidationFailed
	case KindServerFault:
		return ErrServerFault
	default:
		return ErrUnclassified
	}
}

// Error is the typed failure returned to callers. It wraps the sentinel for
// its Kind and, when present, the underlying cause (network error, refresh
// failure).
type Error struct {
	Kind       Kind
	StatusCode int // 0 when no response was received
	Method     string
	Path       string
	RequestID  string // X-Request-ID of the final attempt
	Message    string // human-readable, suitable for notification

	// FieldErrors holds field-level messages of a ValidationFailed response.
	FieldErrors map[string][]string

	Err error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("transport: %s %s", e.Method, e.Path)

	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Kind, e.Err)
	case e.StatusCode == 0:
		return fmt.Sprintf("%s: %s", prefix, e.Kind)
	case e.RequestID != "":
		return fmt.Sprintf("%s: HTTP %d (request-id: %s): %s", prefix, e.StatusCode, e.RequestID, e.Message)
	default:
		return fmt.Sprintf("%s: HTTP %d: %s", prefix, e.StatusCode, e.Message)
	}
}

// Unwrap exposes both the Kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}

	return []error{e.Kind.sentinel()}
}

// KindOf returns the Kind carried by err, or KindUnclassified when err is not
// a transport failure.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}

	return KindUnclassified
}

// unauthenticated builds the terminal Unauthenticated failure for req.
func unauthenticated(req *Request, cause error) *Error {
	return &Error{
		Kind:    KindUnauthenticated,
		Method:  req.Method,
		Path:    req.Path,
		Message: messageUnauthenticated,
		Err:     cause,
	}
}
