package services

import (
	"errors"
	"fmt"
)

// Kind classifies a business-rule failure. A Kind is itself an error so
// callers can write errors.Is(err, services.KindUnauthorized).
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindInvalidTransition      Kind = "invalid_transition"
	KindUnauthorized           Kind = "unauthorized"
	KindInvalidOTP             Kind = "invalid_otp"
	KindOTPExpired             Kind = "otp_expired"
	KindDuplicateRequest       Kind = "duplicate_request"
	KindSelfRequest            Kind = "self_request"
	KindInvalidState           Kind = "invalid_state"
	KindConcurrentModification Kind = "concurrent_modification"
	KindValidation             Kind = "validation_error"
)

func (k Kind) Error() string { return string(k) }

// Retryable reports whether the same call may succeed if simply repeated.
func (k Kind) Retryable() bool { return k == KindConcurrentModification }

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func newErr(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind carried by err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func errBookNotFound(id string) *Error {
	return newErr(KindNotFound, "book %s not found", id)
}

func errRequestNotFound(id string) *Error {
	return newErr(KindNotFound, "request %s not found", id)
}

func errConflict(cause error) *Error {
	return &Error{
		Kind: KindConcurrentModification,
		Msg:  "request was modified concurrently, reload and retry",
		Err:  cause,
	}
}
