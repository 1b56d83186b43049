package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyBody is returned when the device answers with no payload.
	ErrEmptyBody = errors.New("empty response body")

	// ErrUnauthorized is returned when the authenticated retry is rejected too.
	ErrUnauthorized = errors.New("authentication rejected")
)

// ConnectivityError reports a transport failure, a non-2xx status, an empty
// body or rejected credentials.
type ConnectivityError struct {
	// Op is the device file being fetched, e.g. json_status_info.
	Op string

	// StatusCode is the HTTP status, 0 for transport failures.
	StatusCode int

	Err error
}

func (e *ConnectivityError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// NormalizationError reports a payload that was fetched but could not be
// turned into Metrics.
type NormalizationError struct {
	Op  string
	Err error
}

func (e *NormalizationError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// ErrorKindOf classifies err. Anything that is not a NormalizationError is
// treated as a connectivity problem.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var nerr *NormalizationError
	if errors.As(err, &nerr) {
		return ErrorKindNormalization
	}
	return ErrorKindConnectivity
}
