// Package ferr is the tagged-union error type shared across the claim
// pipeline. It replaces ad-hoc error strings with a kind the HTTP layer can
// map to a status code in one place.
package ferr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a category of pipeline failure.
type Kind string

const (
	InvalidInput         Kind = "invalid_input"
	InvalidAddress       Kind = "invalid_address"
	BadSignature         Kind = "bad_signature"
	AddressMismatch      Kind = "address_mismatch"
	MathCheckFailed      Kind = "math_check_failed"
	NotFound             Kind = "not_found"
	AmountMismatch       Kind = "amount_mismatch"
	AlreadyConsumed      Kind = "already_consumed"
	UpstreamFailure      Kind = "upstream_failure"
	StoreFailure         Kind = "store_failure"
	Internal             Kind = "internal"
	UnsupportedKey       Kind = "unsupported_key"
	BadRecoveryTag       Kind = "bad_recovery_tag"
	NonCanonicalSig      Kind = "non_canonical_signature"
)

// Error is the concrete error value carried through the pipeline. The
// Message field is always safe to show to a caller; Cause is logged but
// never serialized.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to an underlying error, preserving it as
// Cause for logging.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// As extracts an *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to Internal for plain errors.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to the HTTP status code it should surface as.
func HTTPStatus(k Kind) int {
	switch k {
	case InvalidInput, InvalidAddress, BadSignature, AddressMismatch,
		MathCheckFailed, AmountMismatch, UnsupportedKey, BadRecoveryTag,
		NonCanonicalSig:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case AlreadyConsumed:
		return http.StatusConflict
	case UpstreamFailure:
		return http.StatusBadGateway
	case StoreFailure, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
