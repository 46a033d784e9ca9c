//go:build !llama

package engine

// Built reports whether this binary was compiled with in-process llama support.
const Built = false

// Open refuses to run without the 'llama' build tag. This keeps default builds
// and CI CGO-free without ever mocking inference.
func Open(opts Options) (Engine, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
