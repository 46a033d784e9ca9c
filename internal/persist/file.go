package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dialogd/internal/common/fsutil"
)

// FileSink keeps the snapshot in a single file, replaced atomically on Save.
type FileSink struct {
	path string
}

// NewFileSink returns a sink writing to path. A leading ~ is expanded.
func NewFileSink(path string) (*FileSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("persist: file sink needs a path")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	return &FileSink{path: p}, nil
}

func (s *FileSink) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("persist: save %s: %w", s.path, err)
	}
	return nil
}

func (s *FileSink) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("persist: load %s: %w", s.path, err)
	}
	return b, nil
}

// SavedAt is the modification time of the snapshot file.
func (s *FileSink) SavedAt(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	fi, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("persist: stat %s: %w", s.path, err)
	}
	return fi.ModTime(), nil
}

func (s *FileSink) Close() error { return nil }
