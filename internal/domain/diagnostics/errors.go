package diagnostics

import "fmt"

// AttachError reports a failed or crashed diagnostics subscription. It is
// logged and counted, never returned to callers.
type AttachError struct {
	Stage    string
	TargetID string
	Err      error
}

func (e *AttachError) Error() string {
	if e.TargetID != "" {
		return fmt.Sprintf("diagnostics %s %s: %v", e.Stage, e.TargetID, e.Err)
	}
	return fmt.Sprintf("diagnostics %s: %v", e.Stage, e.Err)
}

func (e *AttachError) Unwrap() error {
	return e.Err
}
