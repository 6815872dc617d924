package endpoint

import (
	"errors"
	"fmt"
)

// ErrInvalidEndpoint is the sentinel wrapped by every rewrite failure.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// InvalidEndpointError describes why an endpoint could not be rewritten.
type InvalidEndpointError struct {
	Input  string
	Reason string
	Err    error
}

func (e *InvalidEndpointError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid endpoint %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid endpoint %q: %s", e.Input, e.Reason)
}

func (e *InvalidEndpointError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidEndpoint, e.Err}
	}
	return []error{ErrInvalidEndpoint}
}

func invalid(input, reason string, err error) error {
	return &InvalidEndpointError{Input: input, Reason: reason, Err: err}
}
