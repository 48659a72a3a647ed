package submission

import (
	"errors"

	"github.com/fdg312/informes-hub/internal/reportapi"
)

type ErrorKind string

const (
	ErrorServer    ErrorKind = "server"
	ErrorTransport ErrorKind = "transport"
	ErrorDecode    ErrorKind = "decode"
)

// Error is a failed generation attempt. Message is the server detail
// verbatim when there was one, otherwise reportapi.FallbackMessage.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func classify(err error) *Error {
	var apiErr *reportapi.APIError
	var decodeErr *reportapi.DecodeError

	switch {
	case errors.As(err, &apiErr):
		return &Error{Kind: ErrorServer, StatusCode: apiErr.StatusCode, Message: apiErr.Error(), Err: err}
	case errors.As(err, &decodeErr):
		return &Error{Kind: ErrorDecode, Message: reportapi.FallbackMessage, Err: err}
	default:
		return &Error{Kind: ErrorTransport, Message: reportapi.FallbackMessage, Err: err}
	}
}
