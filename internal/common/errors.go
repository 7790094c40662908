// Package common defines shared constants and the error taxonomy used across
// the account service. Callers should use errors.Is to match these values;
// matching is by Kind, so a sentinel still matches after it has been wrapped
// or re-created with a cause.
package common

import (
	"errors"
	"net/http"
)

// Kind is the stable classification of a failure.
type Kind string

const (
	KindNotFound               Kind = "NOT_FOUND"
	KindInternal               Kind = "INTERNAL"
	KindInvalidCredentials     Kind = "INVALID_CREDENTIALS"
	KindInvalidCredential      Kind = "INVALID_CREDENTIAL"
	KindExpiredCredential      Kind = "EXPIRED_CREDENTIAL"
	KindSessionExpired         Kind = "SESSION_EXPIRED"
	KindEmailAlreadyRegistered Kind = "EMAIL_ALREADY_REGISTERED"
	KindAlreadyVerified        Kind = "ALREADY_VERIFIED"
	KindEmailNotVerified       Kind = "EMAIL_NOT_VERIFIED"
	KindWrongProvider          Kind = "WRONG_PROVIDER"
	KindWrongPassword          Kind = "WRONG_PASSWORD"
	KindInvalidOrExpiredToken  Kind = "INVALID_OR_EXPIRED_TOKEN"
	KindConcurrentModification Kind = "CONCURRENT_MODIFICATION"
	KindTransientStorage       Kind = "TRANSIENT_STORAGE_FAILURE"
	KindTransactionTimeout     Kind = "TRANSACTION_TIMEOUT"
	KindTooManyAttempts        Kind = "TOO_MANY_ATTEMPTS"
	KindVersionConflict        Kind = "VERSION_CONFLICT"
	KindForbidden              Kind = "FORBIDDEN"
	KindValidation             Kind = "VALIDATION_FAILURE"
)

// Error is a typed failure carrying a Kind and an HTTP status hint.
type Error struct {
	Kind   Kind
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithCause returns a copy of e that wraps cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

func newError(kind Kind, status int, msg string) *Error {
	return &Error{Kind: kind, Status: status, Msg: msg}
}

var (
	// Repository-level errors.
	ErrorNotFound      = newError(KindNotFound, http.StatusNotFound, "not found")
	ErrVersionConflict = newError(KindVersionConflict, http.StatusConflict, "version conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = newError(KindInternal, http.StatusInternalServerError, "internal error")
	ErrForbidden  = newError(KindForbidden, http.StatusForbidden, "forbidden")

	// Authentication.
	ErrInvalidCredentials = newError(KindInvalidCredentials, http.StatusUnauthorized, "invalid email or password")
	ErrInvalidCredential  = newError(KindInvalidCredential, http.StatusUnauthorized, "invalid token")
	ErrExpiredCredential  = newError(KindExpiredCredential, http.StatusUnauthorized, "token expired")
	ErrSessionExpired     = newError(KindSessionExpired, http.StatusUnauthorized, "session expired")
	ErrTooManyAttempts    = newError(KindTooManyAttempts, http.StatusTooManyRequests, "too many attempts")

	// Account lifecycle.
	ErrEmailAlreadyRegistered = newError(KindEmailAlreadyRegistered, http.StatusConflict, "email already registered")
	ErrAlreadyVerified        = newError(KindAlreadyVerified, http.StatusBadRequest, "email already verified")
	ErrEmailNotVerified       = newError(KindEmailNotVerified, http.StatusForbidden, "email not verified")
	ErrWrongProvider          = newError(KindWrongProvider, http.StatusBadRequest, "account uses an external sign-in provider")
	ErrWrongPassword          = newError(KindWrongPassword, http.StatusBadRequest, "current password is incorrect")
	ErrInvalidOrExpiredToken  = newError(KindInvalidOrExpiredToken, http.StatusBadRequest, "invalid or expired token")
	ErrPasswordTooLong        = newError(KindValidation, http.StatusBadRequest, "password must be at most 72 bytes")

	// Storage.
	ErrConcurrentModification = newError(KindConcurrentModification, http.StatusConflict, "concurrent modification")
	ErrTransientStorage       = newError(KindTransientStorage, http.StatusServiceUnavailable, "transient storage failure")
	ErrTransactionTimeout     = newError(KindTransactionTimeout, http.StatusInternalServerError, "transaction timed out")
)

// KindOf returns the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus returns the status hint for err. Untyped errors are 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// IsUnauthorized reports whether err belongs to the 401 class. Callers must not
// tell these kinds apart in responses to end users.
func IsUnauthorized(err error) bool {
	return HTTPStatus(err) == http.StatusUnauthorized
}
