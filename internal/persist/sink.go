// Package persist stores conversation snapshots produced by the coordinator's
// export. Sinks treat snapshots as opaque bytes keyed by a snapshot name.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoSnapshot is returned by Load when nothing was saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Sink saves and loads one named snapshot.
type Sink interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
	Close() error
}

// Timestamped is implemented by sinks that know when the snapshot was saved.
type Timestamped interface {
	SavedAt(ctx context.Context) (time.Time, error)
}

var (
	_ Timestamped = (*FileSink)(nil)
	_ Timestamped = (*SQLiteSink)(nil)
)

// Kind selects a Sink implementation.
type Kind string

const (
	KindNone     Kind = "none"
	KindFile     Kind = "file"
	KindSQLite   Kind = "sqlite"
	KindDynamoDB Kind = "dynamodb"
)

// DefaultName is the snapshot name used when Options.Name is empty.
const DefaultName = "conversations"

// Options configure Open.
type Options struct {
	Kind Kind
	// Path is the snapshot file (file) or database file (sqlite).
	Path string
	// Table is the DynamoDB table name.
	Table string
	// Name keys the snapshot inside sqlite and dynamodb stores.
	Name string
}

// Open constructs the sink selected by opts.Kind. An empty kind means none.
func Open(ctx context.Context, opts Options) (Sink, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	switch Kind(strings.ToLower(string(opts.Kind))) {
	case "", KindNone:
		return Discard{}, nil
	case KindFile:
		return NewFileSink(opts.Path)
	case KindSQLite:
		return NewSQLiteSink(opts.Path, opts.Name)
	case KindDynamoDB:
		return NewDynamoSink(ctx, opts.Table, opts.Name)
	default:
		return nil, fmt.Errorf("unknown store kind %q", opts.Kind)
	}
}

// Discard drops every snapshot.
type Discard struct{}

func (Discard) Save(context.Context, []byte) error   { return nil }
func (Discard) Load(context.Context) ([]byte, error) { return nil, ErrNoSnapshot }
func (Discard) Close() error                         { return nil }
