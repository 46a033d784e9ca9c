package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanity_EmptyPath(t *testing.T) {
	r := Sanity(Options{})
	if r.OK() || r.Error == "" {
		t.Fatalf("expected error for empty path, got %+v", r)
	}
}

func TestSanity_MissingFile(t *testing.T) {
	r := Sanity(Options{ModelPath: filepath.Join(t.TempDir(), "nope.gguf")})
	if r.ModelFound || r.Error == "" {
		t.Fatalf("expected missing model, got %+v", r)
	}
}

func TestSanity_Directory(t *testing.T) {
	r := Sanity(Options{ModelPath: t.TempDir()})
	if r.ModelFound || r.Error != "model path is a directory" {
		t.Fatalf("expected directory error, got %+v", r)
	}
}

func TestSanity_FilePresent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "m.gguf")
	if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := Sanity(Options{ModelPath: p})
	if !r.ModelFound || r.ModelPath != p {
		t.Fatalf("expected model found, got %+v", r)
	}
	if r.LlamaBuilt != Built {
		t.Fatalf("LlamaBuilt should mirror Built")
	}
	if !Built && r.OK() {
		t.Fatalf("report must not be OK without llama support")
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{ContextSize: 64, BatchSize: 128}.withDefaults()
	if o.BatchSize != 64 {
		t.Fatalf("batch size should be clamped to context size, got %d", o.BatchSize)
	}
	if o.Threads != DefaultOptions().Threads {
		t.Fatalf("threads default not applied: %d", o.Threads)
	}
}

func TestIsDependencyUnavailable(t *testing.T) {
	err := ErrDependencyUnavailable("x")
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable")
	}
	if IsDependencyUnavailable(ErrCacheFull) {
		t.Fatalf("sentinel should not match")
	}
}
