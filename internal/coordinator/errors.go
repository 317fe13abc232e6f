package coordinator

import "fmt"

// SetupError is returned by Initialize when the first refresh could not complete.
type SetupError struct {
	// Stage is one of "login", "maintenance", "energy" or "schedule".
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("apti setup failed during %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// RefreshError is returned by RefreshNow when any step of the refresh failed,
// whatever did succeed is still written to the snapshot.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("apti refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
