package reportapi

import "fmt"

// StatusError is a non-2xx health answer.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// APIError is a non-2xx answer from a generation endpoint.
type APIError struct {
	StatusCode int
	Detail     string
}

// Error returns the service detail verbatim, or the fallback message.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return FallbackMessage
}

// DecodeError means a 2xx body was not a report.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "respuesta inválida del servidor: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
