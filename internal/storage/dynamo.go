package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	attrPK    = "pk"
	attrSK    = "sk"
	attrValue = "val"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoBackend.
// *dynamodb.Client from aws-sdk-go-v2 satisfies this interface.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoBackend maps a namespace to a partition (pk) and a record key to the
// sort key (sk) of a single table.
type DynamoBackend struct {
	api       dynamodbAPI
	tableName string
}

func NewDynamoBackend(api dynamodbAPI, tableName string) (*DynamoBackend, error) {
	if api == nil {
		return nil, errors.New("storage: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("storage: table name must not be empty")
	}
	return &DynamoBackend{api: api, tableName: tableName}, nil
}

func (b *DynamoBackend) Namespace(name string) Store {
	return &dynamoStore{api: b.api, tableName: b.tableName, pk: name}
}

func (b *DynamoBackend) Ping(ctx context.Context) error {
	_, err := b.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(b.tableName)})
	if err != nil {
		return fmt.Errorf("storage: describe table %q: %w", b.tableName, err)
	}
	return nil
}

func (b *DynamoBackend) Close() error { return nil }

type dynamoStore struct {
	api       dynamodbAPI
	tableName string
	pk        string
}

func (s *dynamoStore) key(k string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: s.pk},
		attrSK: &types.AttributeValueMemberS{Value: k},
	}
}

func (s *dynamoStore) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record %q: %w", key, err)
	}
	item := s.key(key)
	item[attrValue] = &types.AttributeValueMemberS{Value: string(data)}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("storage: put %q: %w", key, err)
	}
	return nil
}

func (s *dynamoStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("storage: get %q: %w", key, err)
	}
	if out == nil || len(out.Item) == 0 {
		return false, nil
	}
	data, err := valueOf(out.Item)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode record %q: %w", key, err)
	}
	return true, nil
}

func (s *dynamoStore) Delete(ctx context.Context, key string) (bool, error) {
	out, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          s.key(key),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return out != nil && len(out.Attributes) > 0, nil
}

func (s *dynamoStore) List(ctx context.Context, opts ListOptions) ([]json.RawMessage, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrPK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: s.pk},
		},
		ScanIndexForward: aws.Bool(!opts.Reverse),
		ConsistentRead:   aws.Bool(true),
	}
	if opts.Limit > 0 {
		in.Limit = aws.Int32(int32(opts.Limit))
	}

	out := []json.RawMessage{}
	for {
		page, err := s.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("storage: query %q: %w", s.pk, err)
		}
		for _, item := range page.Items {
			data, err := valueOf(item)
			if err != nil {
				return nil, err
			}
			out = append(out, data)
			if opts.Limit > 0 && len(out) == opts.Limit {
				return out, nil
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func valueOf(item map[string]types.AttributeValue) (json.RawMessage, error) {
	v, ok := item[attrValue].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("storage: item missing value attribute")
	}
	return json.RawMessage(v.Value), nil
}
