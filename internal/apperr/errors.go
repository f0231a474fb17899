// Package apperr defines the typed errors the service layer returns and the
// single mapping from those errors to HTTP status codes. Handlers translate
// errors into the response envelope exactly once, at the transport boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicateUser
	KindInvalidCredentials
	KindUnauthorized
	KindTokenReuse
	KindRateLimited
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match two apperr values by kind, so callers can compare
// against a bare constructor result without caring about the message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func DuplicateUser(msg string) *Error {
	return &Error{Kind: KindDuplicateUser, Message: msg}
}

func InvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func TokenReuse() *Error {
	return &Error{Kind: KindTokenReuse, Message: "refresh token is expired or already used"}
}

func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Message: "too many attempts, try again later"}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// HTTPStatus maps any error to a status code. Untyped errors are treated as
// internal failures.
func HTTPStatus(err error) int {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindDuplicateUser:
		return http.StatusConflict
	case KindInvalidCredentials, KindUnauthorized, KindTokenReuse:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to put in an error envelope. Internal
// errors are masked so infrastructure details never reach clients.
func PublicMessage(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Kind == KindInternal {
		return "internal server error"
	}
	return appErr.Message
}
