package sentinel

import (
	"errors"
	"fmt"
)

// Infrastructure facts shared across packages. Callers match them with
// errors.Is; the wrapped message carries the key or operation.
var (
	// ErrNotFound: the key has no accepted message or no cached snapshot.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable: the broker, cache or database could not be reached.
	ErrUnavailable = errors.New("unavailable")
)

// NotFound reports that key has no state.
func NotFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Unavailable wraps a backend failure during op.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
