package persist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

func testSinkRoundTrip(t *testing.T, s Sink) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, s.Save(ctx, []byte(`{"v":1}`)))
	require.NoError(t, s.Save(ctx, []byte(`{"v":2}`)))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"v":2}`, string(got))
	require.NoError(t, s.Close())
}

func TestFileSink(t *testing.T) {
	s, err := NewFileSink(filepath.Join(t.TempDir(), "dir", "snap.json"))
	require.NoError(t, err)
	testSinkRoundTrip(t, s)

	_, err = NewFileSink("  ")
	require.Error(t, err)
}

func TestFileSinkSavedAt(t *testing.T) {
	s, err := NewFileSink(filepath.Join(t.TempDir(), "snap.json"))
	require.NoError(t, err)
	var ts Timestamped = s
	_, err = ts.SavedAt(context.Background())
	require.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, s.Save(context.Background(), []byte(`{}`)))
	at, err := ts.SavedAt(context.Background())
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), at, time.Minute)
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := NewSQLiteSink(path, "")
	require.NoError(t, err)
	testSinkRoundTrip(t, s)

	// data survives reopening and names are independent
	s, err = NewSQLiteSink(path, DefaultName)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, `{"v":2}`, string(got))
	at, err := s.SavedAt(context.Background())
	require.NoError(t, err)
	require.False(t, at.IsZero())

	other, err := NewSQLiteSink(path, "other")
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Load(context.Background())
	require.ErrorIs(t, err, ErrNoSnapshot)
}

type fakeDynamo struct {
	items   map[string]map[string]types.AttributeValue
	putErr  error
	getErr  error
	lastPut *dynamodb.PutItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	pk := in.Key["PK"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[pk]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	if f.items == nil {
		f.items = make(map[string]map[string]types.AttributeValue)
	}
	pk := in.Item["PK"].(*types.AttributeValueMemberS).Value
	f.items[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoSink(t *testing.T) {
	db := &fakeDynamo{}
	s, err := newDynamoSink(db, "dialogd", "")
	require.NoError(t, err)
	testSinkRoundTrip(t, s)
	require.Equal(t, "dialogd", *db.lastPut.TableName)
	_, ok := db.items["SNAPSHOT#"+DefaultName]
	require.True(t, ok)
}

func TestDynamoSinkErrors(t *testing.T) {
	_, err := newDynamoSink(nil, "t", "n")
	require.Error(t, err)
	_, err = newDynamoSink(&fakeDynamo{}, " ", "n")
	require.Error(t, err)

	db := &fakeDynamo{}
	s, err := newDynamoSink(db, "t", "n")
	require.NoError(t, err)
	err = s.Save(context.Background(), make([]byte, maxItemBytes+1))
	require.ErrorIs(t, err, ErrSnapshotTooLarge)
	require.Nil(t, db.lastPut, "oversized snapshots never reach DynamoDB")

	db.putErr = errors.New("throttled")
	require.ErrorContains(t, s.Save(context.Background(), []byte("x")), "throttled")

	db.getErr = errors.New("down")
	_, err = s.Load(context.Background())
	require.ErrorContains(t, err, "down")

	db.getErr = nil
	db.items = map[string]map[string]types.AttributeValue{
		"SNAPSHOT#n": {"PK": &types.AttributeValueMemberS{Value: "SNAPSHOT#n"}, "data": &types.AttributeValueMemberS{Value: "x"}},
	}
	_, err = s.Load(context.Background())
	require.ErrorContains(t, err, "not binary")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Options{})
	require.NoError(t, err)
	require.IsType(t, Discard{}, s)
	_, err = s.Load(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)

	s, err = Open(ctx, Options{Kind: KindFile, Path: filepath.Join(t.TempDir(), "s.json")})
	require.NoError(t, err)
	require.IsType(t, &FileSink{}, s)

	s, err = Open(ctx, Options{Kind: "SQLITE", Path: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	require.IsType(t, &SQLiteSink{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Kind: "redis"})
	require.ErrorContains(t, err, "unknown store kind")
}
