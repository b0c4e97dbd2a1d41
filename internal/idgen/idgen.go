package idgen

import "github.com/google/uuid"

// NewFunc returns a new globally unique identifier. Override in tests for
// deterministic ids.
var NewFunc = func() string { return uuid.NewString() }

func New() string { return NewFunc() }

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
