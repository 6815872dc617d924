package pages

import "fmt"

// CloseError is returned when a page could not be closed, usually because it
// was already gone.
type CloseError struct {
	TargetID string
	Err      error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("close page %s: %v", e.TargetID, e.Err)
}

func (e *CloseError) Unwrap() error {
	return e.Err
}
