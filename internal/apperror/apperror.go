package apperror

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindClient
	KindAuth
	KindOwnership
	KindNotFound
	KindConflict
	KindTransient
	KindUpstream
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client_error"
	case KindAuth:
		return "unauthorized"
	case KindOwnership:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "processing"
	case KindUpstream:
		return "upstream_error"
	case KindRateLimited:
		return "rate_limited"
	case KindInternal:
		return "internal_error"
	}
	return "internal_error"
}

func (k Kind) HTTPStatus() int {
	switch k {
	case KindClient:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindOwnership:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusAccepted
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream, KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// Error carries a Kind across package boundaries so the HTTP layer can map it without
// knowing every sentinel.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// KindOf returns KindInternal for errors that were never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf falls back to the kind's name.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return KindOf(err).String()
}
