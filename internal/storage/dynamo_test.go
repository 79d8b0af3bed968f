package storage

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo is an in-memory table keyed by (pk, sk). Query pages are capped at
// pageSize items to exercise pagination.
type fakeDynamo struct {
	items    map[string]map[string]map[string]types.AttributeValue
	pageSize int
	queryErr error
	queries  int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]map[string]types.AttributeValue{}, pageSize: 2}
}

func keyOf(item map[string]types.AttributeValue) (string, string) {
	pk := item[attrPK].(*types.AttributeValueMemberS).Value
	sk := item[attrSK].(*types.AttributeValueMemberS).Value
	return pk, sk
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	pk, sk := keyOf(in.Key)
	return &dynamodb.GetItemOutput{Item: f.items[pk][sk]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	pk, sk := keyOf(in.Item)
	if f.items[pk] == nil {
		f.items[pk] = map[string]map[string]types.AttributeValue{}
	}
	f.items[pk][sk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	pk, sk := keyOf(in.Key)
	old, ok := f.items[pk][sk]
	if !ok {
		return &dynamodb.DeleteItemOutput{}, nil
	}
	delete(f.items[pk], sk)
	return &dynamodb.DeleteItemOutput{Attributes: old}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	var sks []string
	for sk := range f.items[pk] {
		sks = append(sks, sk)
	}
	sort.Strings(sks)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		sort.Sort(sort.Reverse(sort.StringSlice(sks)))
	}

	start := 0
	if in.ExclusiveStartKey != nil {
		_, after := keyOf(in.ExclusiveStartKey)
		for i, sk := range sks {
			if sk == after {
				start = i + 1
			}
		}
	}
	size := f.pageSize
	if in.Limit != nil && int(*in.Limit) < size {
		size = int(*in.Limit)
	}
	end := start + size
	if end > len(sks) {
		end = len(sks)
	}

	out := &dynamodb.QueryOutput{}
	for _, sk := range sks[start:end] {
		out.Items = append(out.Items, f.items[pk][sk])
	}
	if end < len(sks) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			attrPK: &types.AttributeValueMemberS{Value: pk},
			attrSK: &types.AttributeValueMemberS{Value: sks[end-1]},
		}
	}
	return out, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func TestNewDynamoBackend_Validation(t *testing.T) {
	_, err := NewDynamoBackend(nil, "table")
	require.Error(t, err)

	_, err = NewDynamoBackend(newFakeDynamo(), "  ")
	require.Error(t, err)
}

func TestDynamoBackend(t *testing.T) {
	b, err := NewDynamoBackend(newFakeDynamo(), "boards")
	require.NoError(t, err)
	require.NoError(t, b.Ping(context.Background()))
	runStoreContract(t, b)
}

func TestDynamoBackend_ListFollowsPages(t *testing.T) {
	fake := newFakeDynamo()
	b, err := NewDynamoBackend(fake, "boards")
	require.NoError(t, err)
	s := b.Namespace("paged")
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Put(ctx, k, record{ID: k}))
	}

	raws, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, raws, 5)
	assert.Equal(t, 3, fake.queries)
}

func TestDynamoBackend_QueryError(t *testing.T) {
	fake := newFakeDynamo()
	fake.queryErr = errors.New("throttled")
	b, err := NewDynamoBackend(fake, "boards")
	require.NoError(t, err)

	_, err = b.Namespace("x").List(context.Background(), ListOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
