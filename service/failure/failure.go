// Package failure classifies errors produced anywhere in the tip flow so that
// callers can decide whether to fix their input, retry, or escalate.
package failure

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// Kind identifies a class of failure.
type Kind string

const (
	InvalidInput       Kind = "invalid_input"
	NotFound           Kind = "not_found"
	AlreadyExists      Kind = "already_exists"
	AddressMismatch    Kind = "address_mismatch"
	InvalidAmount      Kind = "invalid_amount"
	Overflow           Kind = "overflow"
	InsufficientFunds  Kind = "insufficient_funds"
	RelayerUnderfunded Kind = "relayer_underfunded"
	ServiceUnavailable Kind = "service_unavailable"
	StaleCheckpoint    Kind = "stale_checkpoint"
	Timeout            Kind = "timeout"
	Internal           Kind = "internal"
)

// Class is the user-facing category of a failure.
type Class string

const (
	ClassFixInput       Class = "fix_input"
	ClassTryAgain       Class = "try_again"
	ClassContactSupport Class = "contact_support"
)

// Error is a classified error. The cause is optional.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New returns a classified error without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. The original error stays reachable through errors.Unwrap
// and pkg/errors.Cause.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return New(kind, "%s", message)
	}
	return &Error{Kind: kind, Message: message, cause: pkgerrors.Wrap(err, message)}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e.cause == nil {
		return nil
	}
	return pkgerrors.Cause(e.cause)
}

// Is matches another *Error of the same kind, so the Err* sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Retryable reports whether the same request may succeed later without
// changes from the caller. StaleCheckpoint is retryable only after rebuilding.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ServiceUnavailable, StaleCheckpoint, Timeout:
		return true
	}
	return false
}

// Class maps the kind to what a user should do next.
func (e *Error) Class() Class {
	switch e.Kind {
	case InvalidInput, NotFound, AlreadyExists, InvalidAmount, InsufficientFunds:
		return ClassFixInput
	case ServiceUnavailable, StaleCheckpoint, Timeout:
		return ClassTryAgain
	default:
		return ClassContactSupport
	}
}

// HTTPStatus maps the kind to a response status for the relay API.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case InvalidInput, InvalidAmount, AddressMismatch:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists:
		return http.StatusConflict
	case InsufficientFunds:
		return http.StatusUnprocessableEntity
	case ServiceUnavailable, StaleCheckpoint, RelayerUnderfunded:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is matching on kind alone.
var (
	ErrInvalidInput       = &Error{Kind: InvalidInput}
	ErrNotFound           = &Error{Kind: NotFound}
	ErrAlreadyExists      = &Error{Kind: AlreadyExists}
	ErrAddressMismatch    = &Error{Kind: AddressMismatch}
	ErrInvalidAmount      = &Error{Kind: InvalidAmount}
	ErrOverflow           = &Error{Kind: Overflow}
	ErrInsufficientFunds  = &Error{Kind: InsufficientFunds}
	ErrRelayerUnderfunded = &Error{Kind: RelayerUnderfunded}
	ErrServiceUnavailable = &Error{Kind: ServiceUnavailable}
	ErrStaleCheckpoint    = &Error{Kind: StaleCheckpoint}
	ErrTimeout            = &Error{Kind: Timeout}
	ErrInternal           = &Error{Kind: Internal}
)

// From returns the classified error in err's chain. Unclassified errors are
// reported as Internal so nothing opaque reaches a user.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: Internal, Message: "internal error", cause: err}
}

// KindOf is shorthand for From(err).Kind. It returns "" for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}
