package provider

import (
	"errors"
	"fmt"
)

// Error kinds returned by Client. Match with errors.Is.
var (
	// ErrTransport means the request never produced an HTTP response.
	ErrTransport = errors.New("transport failure")
	// ErrBackend means the backend answered with an unexpected status; the
	// concrete error is a *StatusError.
	ErrBackend = errors.New("backend failure")
	// ErrMalformedResponse means a 2xx body could not be decoded or lacked a
	// required field.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError carries the status and a body excerpt of a rejected call.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP failure %d: %s", e.Endpoint, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrBackend }
