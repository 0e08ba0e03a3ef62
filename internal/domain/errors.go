package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthorized
	KindNotFound
	KindRateLimited
	KindProviderUnavailable
	KindVerificationFailed
	KindInvalid
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindVerificationFailed:
		return "verification_failed"
	case KindInvalid:
		return "invalid"
	case KindConflict:
		return "conflict"
	}
	return "unknown"
}

type Error struct {
	Kind    Kind
	Msg     string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = &Error{Kind: KindNotFound, Msg: "not found"}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// AsError returns the first *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Msg: msg} }

func Invalid(msg string) error { return &Error{Kind: KindInvalid, Msg: msg} }

func Conflict(msg string) error { return &Error{Kind: KindConflict, Msg: msg} }

func RateLimited(msg, details string) error {
	return &Error{Kind: KindRateLimited, Msg: msg, Details: details}
}

func ProviderUnavailable(msg, details string, err error) error {
	return &Error{Kind: KindProviderUnavailable, Msg: msg, Details: details, Err: err}
}

func VerificationFailed(msg, details string) error {
	return &Error{Kind: KindVerificationFailed, Msg: msg, Details: details}
}
