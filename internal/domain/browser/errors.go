package browser

import (
	"errors"
	"fmt"
)

var (
	ErrClosed       = errors.New("browser supervisor closed")
	ErrDisconnected = errors.New("browser disconnected")
	ErrNoEndpoint   = errors.New("browser reported no control endpoint")
)

// LaunchError reports that no browser could be made available.
type LaunchError struct {
	Stage string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("browser launch failed (%s): %v", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

func launchError(stage string, err error) error {
	var le *LaunchError
	if errors.As(err, &le) {
		return err
	}
	return &LaunchError{Stage: stage, Err: err}
}

// IsLaunchError reports whether err is, or wraps, a LaunchError.
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
