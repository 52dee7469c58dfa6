package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/internal/shard"
)

// ChildRef is a relationship record: one child of a page.
type ChildRef struct {
	// Ref is the child's entity reference ("block#<id>").
	Ref string
	// TableName is the table holding the child.
	TableName string
	// Key is the child's primary key.
	Key PK
	// ShardPK is the relationship partition the record was found in.
	ShardPK string
}

// QueryAllChildren returns every child recorded under parentRef, deleted
// ones included. The cascade handler uses it to propagate a deletion.
func (b *Backend) QueryAllChildren(ctx context.Context, parentRef string) ([]ChildRef, error) {
	pks := shard.All(parentRef, b.config.NumShards)

	// Fast path for single shard (default)
	if len(pks) == 1 {
		return b.queryShard(ctx, pks[0])
	}

	var mu sync.Mutex
	var all []ChildRef
	var wg sync.WaitGroup
	errs := make(chan error, len(pks))

	for _, pk := range pks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			children, err := b.queryShard(ctx, pk)
			if err != nil {
				errs <- fmt.Errorf("shard %s: %w", pk, err)
				return
			}
			mu.Lock()
			all = append(all, children...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, err
	}
	return all, nil
}

func (b *Backend) queryShard(ctx context.Context, shardPK string) ([]ChildRef, error) {
	var children []ChildRef
	paginator := dynamodb.NewQueryPaginator(b.client, &dynamodb.QueryInput{
		TableName:              aws.String(b.config.RelationshipTable),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: shardPK},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			children = append(children, unmarshalChildRef(item, shardPK))
		}
	}
	return children, nil
}

// SetTTLByKey sets the TTL of an item that has none yet. An item already
// marked deleted is left alone.
func (b *Backend) SetTTLByKey(ctx context.Context, table string, key PK, ttl int64) error {
	_, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(table),
		Key:                      key,
		UpdateExpression:         aws.String("SET #ttl = :ttl"),
		ConditionExpression:      aws.String("attribute_exists(id) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: ttlNames(),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
		},
	})
	if isConditionFailed(err) {
		return nil
	}
	return err
}

// SetRelationshipTTL sets the TTL of the record of childRef under parentRef.
func (b *Backend) SetRelationshipTTL(ctx context.Context, childRef, parentRef string, ttl int64) error {
	_, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(b.config.RelationshipTable),
		Key: map[string]types.AttributeValue{
			"pk":        &types.AttributeValueMemberS{Value: b.relationshipPK(parentRef, childRef)},
			"child_ref": &types.AttributeValueMemberS{Value: childRef},
		},
		UpdateExpression:         aws.String("SET #ttl = :ttl"),
		ConditionExpression:      aws.String("attribute_exists(pk) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: ttlNames(),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
		},
	})
	if isConditionFailed(err) {
		return nil
	}
	return err
}

func unmarshalChildRef(item map[string]types.AttributeValue, shardPK string) ChildRef {
	ref := ChildRef{ShardPK: shardPK}
	if v, ok := item["child_ref"].(*types.AttributeValueMemberS); ok {
		ref.Ref = v.Value
	}
	if v, ok := item["child_table"].(*types.AttributeValueMemberS); ok {
		ref.TableName = v.Value
	}
	if v, ok := item["child_key"].(*types.AttributeValueMemberM); ok {
		ref.Key = v.Value
	}
	return ref
}
