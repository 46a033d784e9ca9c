package engine

import "errors"

// Failure kinds reported by engines. Adapters wrap these so callers can use
// errors.Is.
var (
	ErrTokenization = errors.New("tokenization failed")
	ErrCacheFull    = errors.New("kv cache full")
	ErrOutOfMemory  = errors.New("out of memory")
	ErrInvalidBatch = errors.New("invalid batch")
)

// dependencyUnavailableError signals that the engine runtime was not built in
// or could not be loaded, so callers can report 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var de dependencyUnavailableError
	return errors.As(err, &de)
}
