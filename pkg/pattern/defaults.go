package pattern

import (
	"encoding/json"
	"errors"

	_ "embed"
)

// Community-maintained AI crawler patterns, compiled into the binary.
//
//go:embed patterns.json
var defaultPatterns []byte

// Defaults parses the bundled community pattern set. The parse is
// all-or-nothing: a malformed bundle yields a *LoadError and no specs.
func Defaults() ([]Spec, error) {
	var specs []Spec
	if err := json.Unmarshal(defaultPatterns, &specs); err != nil {
		return nil, &LoadError{Err: err}
	}
	if len(specs) == 0 {
		return nil, &LoadError{Err: errors.New("bundled pattern set is empty")}
	}
	return specs, nil
}
