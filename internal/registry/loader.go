// Package registry discovers model files and resolves which one the engine opens.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"dialogd/internal/common/fsutil"
	"dialogd/pkg/types"
)

// ErrModelNotFound is returned by Resolve when no model matches.
var ErrModelNotFound = errors.New("model not found")

// Scanner lists the models found under a directory.
type Scanner interface {
	Scan(dir string) ([]types.Model, error)
}

// GGUFScanner lists *.gguf files. ID is the full filename; Path is absolute.
type GGUFScanner struct{}

func NewGGUFScanner() GGUFScanner { return GGUFScanner{} }

var quantRe = regexp.MustCompile(`(?i)[._-]((?:i?q\d+(?:_[a-z0-9]+)*)|f16|f32|bf16)\.gguf$`)

func (GGUFScanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		m := types.Model{ID: name, Name: name, Path: filepath.Join(abs, name)}
		if q := quantRe.FindStringSubmatch(name); q != nil {
			m.Quant = strings.ToUpper(q[1])
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans dir with the GGUF scanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewGGUFScanner().Scan(dir)
}

// Resolve picks the model file to open. An explicit path wins. Otherwise the
// model with id is looked up in models; an empty id selects the only model
// when exactly one exists.
func Resolve(path, id string, models []types.Model) (types.Model, error) {
	if strings.TrimSpace(path) != "" {
		p, err := fsutil.ExpandHome(path)
		if err != nil {
			return types.Model{}, err
		}
		if !fsutil.PathExists(p) {
			return types.Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, p)
		}
		name := filepath.Base(p)
		return types.Model{ID: name, Name: name, Path: p}, nil
	}
	if id == "" {
		switch len(models) {
		case 0:
			return types.Model{}, fmt.Errorf("%w: models directory is empty", ErrModelNotFound)
		case 1:
			return models[0], nil
		default:
			return types.Model{}, fmt.Errorf("%d models found, set model_id to choose one", len(models))
		}
	}
	for _, m := range models {
		if m.ID == id || strings.TrimSuffix(m.ID, filepath.Ext(m.ID)) == id {
			return m, nil
		}
	}
	return types.Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
}
