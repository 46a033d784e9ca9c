package persist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// maxItemBytes is DynamoDB's item size limit.
const maxItemBytes = 400 * 1024

// ErrSnapshotTooLarge is returned when a snapshot does not fit in one item.
var ErrSnapshotTooLarge = errors.New("snapshot exceeds DynamoDB item size limit")

// dynamodbAPI is the minimal DynamoDB interface required by DynamoSink.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoSink keeps the snapshot as a single DynamoDB item keyed by
// PK = "SNAPSHOT#<name>".
type DynamoSink struct {
	api   dynamodbAPI
	table string
	name  string
}

// NewDynamoSink loads the default AWS configuration and returns a sink for table.
func NewDynamoSink(ctx context.Context, table, name string) (*DynamoSink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("persist: load aws config: %w", err)
	}
	return newDynamoSink(dynamodb.NewFromConfig(cfg), table, name)
}

func newDynamoSink(api dynamodbAPI, table, name string) (*DynamoSink, error) {
	if api == nil {
		return nil, errors.New("persist: dynamodb api must not be nil")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("persist: dynamodb table name must not be empty")
	}
	if name == "" {
		name = DefaultName
	}
	return &DynamoSink{api: api, table: table, name: name}, nil
}

func snapshotPK(name string) string { return "SNAPSHOT#" + name }

func (s *DynamoSink) Save(ctx context.Context, data []byte) error {
	if len(data) > maxItemBytes {
		return fmt.Errorf("persist: %w: %d bytes", ErrSnapshotTooLarge, len(data))
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"PK":       &types.AttributeValueMemberS{Value: snapshotPK(s.name)},
			"data":     &types.AttributeValueMemberB{Value: data},
			"saved_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("persist: dynamodb put: %w", err)
	}
	return nil
}

func (s *DynamoSink) Load(ctx context.Context) ([]byte, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: snapshotPK(s.name)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("persist: dynamodb get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrNoSnapshot
	}
	v, ok := out.Item["data"]
	if !ok {
		return nil, errors.New("persist: snapshot item has no data attribute")
	}
	b, ok := v.(*types.AttributeValueMemberB)
	if !ok {
		return nil, errors.New("persist: snapshot data attribute is not binary")
	}
	return b.Value, nil
}

func (s *DynamoSink) Close() error { return nil }
