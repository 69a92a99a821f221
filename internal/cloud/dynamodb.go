package cloud

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoCache is the distributed cache.Store backend for multi-instance
// deployments. One table, pk = cache key; TTL rides the table's native
// expiry attribute, and is additionally checked client-side on read since
// the DynamoDB TTL sweep can lag by minutes.
type DynamoCache struct {
	svc   *dynamodb.Client
	table string
}

// NewDynamoCache creates a cache backend over the named DynamoDB table.
func NewDynamoCache(region, table string) (*DynamoCache, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &DynamoCache{svc: dynamodb.NewFromConfig(cfg), table: table}, nil
}

func expiryAttr(ttl time.Duration) types.AttributeValue {
	if ttl <= 0 {
		return &types.AttributeValueMemberN{Value: "0"}
	}
	return &types.AttributeValueMemberN{
		Value: strconv.FormatInt(time.Now().Add(ttl).Unix(), 10),
	}
}

func expired(item map[string]types.AttributeValue) bool {
	attr, ok := item["expires_at"].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	exp, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil || exp == 0 {
		return false
	}
	return time.Now().Unix() >= exp
}

func (c *DynamoCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := c.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	if out.Item == nil || expired(out.Item) {
		return nil, false, nil
	}
	val, ok := out.Item["val"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false, nil
	}
	return val.Value, true, nil
}

func (c *DynamoCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			"pk":         &types.AttributeValueMemberS{Value: key},
			"val":        &types.AttributeValueMemberB{Value: value},
			"expires_at": expiryAttr(ttl),
		},
	})
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

func (c *DynamoCache) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	_, err := c.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			"pk":         &types.AttributeValueMemberS{Value: key},
			"val":        &types.AttributeValueMemberB{Value: value},
			"expires_at": expiryAttr(ttl),
		},
		// Absent, or present but past its client-side expiry.
		ConditionExpression: aws.String("attribute_not_exists(pk) OR (expires_at > :zero AND expires_at <= :now)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":now":  &types.AttributeValueMemberN{Value: now},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("cache set-if-absent %q: %w", key, err)
	}
	return true, nil
}

func (c *DynamoCache) Delete(ctx context.Context, key string) error {
	_, err := c.svc.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

func (c *DynamoCache) ListPush(ctx context.Context, key string, value []byte) error {
	_, err := c.svc.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: aws.String("SET vals = list_append(:new, if_not_exists(vals, :empty)), expires_at = :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberB{Value: value},
			}},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":zero":  &types.AttributeValueMemberN{Value: "0"},
		},
	})
	if err != nil {
		return fmt.Errorf("cache list push %q: %w", key, err)
	}
	return nil
}

func (c *DynamoCache) ListTrim(ctx context.Context, key string, start, stop int) error {
	raw, err := c.listAll(ctx, key)
	if err != nil {
		return err
	}
	lo, hi := clampRange(start, stop, len(raw))
	var kept []types.AttributeValue
	if lo <= hi {
		for _, b := range raw[lo : hi+1] {
			kept = append(kept, &types.AttributeValueMemberB{Value: b})
		}
	}
	_, err = c.svc.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: aws.String("SET vals = :vals"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":vals": &types.AttributeValueMemberL{Value: kept},
		},
	})
	if err != nil {
		return fmt.Errorf("cache list trim %q: %w", key, err)
	}
	return nil
}

func (c *DynamoCache) ListRange(ctx context.Context, key string, start, stop int) ([][]byte, error) {
	raw, err := c.listAll(ctx, key)
	if err != nil {
		return nil, err
	}
	lo, hi := clampRange(start, stop, len(raw))
	if lo > hi {
		return nil, nil
	}
	return raw[lo : hi+1], nil
}

func (c *DynamoCache) listAll(ctx context.Context, key string) ([][]byte, error) {
	out, err := c.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cache list read %q: %w", key, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	list, ok := out.Item["vals"].(*types.AttributeValueMemberL)
	if !ok {
		return nil, nil
	}
	vals := make([][]byte, 0, len(list.Value))
	for _, av := range list.Value {
		if b, ok := av.(*types.AttributeValueMemberB); ok {
			vals = append(vals, b.Value)
		}
	}
	return vals, nil
}

func clampRange(start, stop, n int) (int, int) {
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}
