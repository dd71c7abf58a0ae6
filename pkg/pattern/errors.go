package pattern

import "fmt"

// LoadError means the bundled pattern data could not be parsed or
// compiled. Nothing is loaded when it is returned.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading bundled patterns: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ValidationError names the signature that failed validation and why.
// When returned from a batch Add, none of the batch was applied.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid pattern: %s", e.Reason)
	}
	return fmt.Sprintf("invalid pattern %q: %s", e.Name, e.Reason)
}
