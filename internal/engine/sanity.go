package engine

import (
	"os"
	"strings"

	"dialogd/internal/common/fsutil"
)

// SanityReport describes runtime checks for the engine dependency.
type SanityReport struct {
	LlamaBuilt bool   `json:"llama_built"`
	ModelFound bool   `json:"model_found"`
	ModelPath  string `json:"model_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// OK reports whether Open is expected to succeed.
func (r SanityReport) OK() bool { return r.LlamaBuilt && r.ModelFound && r.Error == "" }

// Sanity validates that the engine can be opened with opts.
// It does not load the model and is safe to call at any time.
func Sanity(opts Options) SanityReport {
	r := SanityReport{LlamaBuilt: Built}
	p := strings.TrimSpace(opts.ModelPath)
	if p == "" {
		r.Error = "model path is empty"
		return r
	}
	p, err := fsutil.ExpandHome(p)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.ModelPath = p
	fi, err := os.Stat(p)
	switch {
	case err != nil:
		r.Error = err.Error()
	case fi.IsDir():
		r.Error = "model path is a directory"
	default:
		r.ModelFound = true
	}
	if r.Error == "" && !r.LlamaBuilt {
		r.Error = "llama support not built (missing 'llama' build tag)"
	}
	return r
}
