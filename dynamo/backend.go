package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/canopy/internal/shard"
	"github.com/jacentio/canopy/transport"
)

// maxTransactItems is the DynamoDB limit on items in one transaction.
const maxTransactItems = 100

// API is the part of the DynamoDB client the backend uses.
// *dynamodb.Client implements it.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Backend stores pages and blocks in DynamoDB.
type Backend struct {
	client   API
	config   Config
	registry *Registry
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithClock sets the clock used for timestamps and TTLs.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithIDs sets the generator for new entity ids.
func WithIDs(newID func() string) Option {
	return func(b *Backend) { b.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithRegistry replaces the default relationship registry.
func WithRegistry(r *Registry) Option {
	return func(b *Backend) { b.registry = r }
}

// New creates a Backend.
func New(client API, config Config, opts ...Option) *Backend {
	config.validate()
	b := &Backend{
		client: client,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.registry == nil {
		b.registry = DefaultRegistry(config)
	}
	return b
}

// Pages returns the page transport backed by the pages table.
func (b *Backend) Pages() transport.Pages { return pageTable{b} }

// Blocks returns the block transport backed by the blocks table.
func (b *Backend) Blocks() transport.Blocks { return blockTable{b} }

// Config returns the validated configuration.
func (b *Backend) Config() Config { return b.config }

// Registry returns the relationship registry.
func (b *Backend) Registry() *Registry { return b.registry }

// relationshipPK computes the sharded partition key for a relationship record.
func (b *Backend) relationshipPK(parentRef, childRef string) string {
	return shard.RelationshipPK(parentRef, childRef, b.config.NumShards)
}

// getItem returns the active item with id, or nil when it is missing or
// deleted.
func (b *Backend) getItem(ctx context.Context, table, id string) (map[string]types.AttributeValue, error) {
	result, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil || IsDeleted(result.Item, b.now()) {
		return nil, nil
	}
	return result.Item, nil
}

// queryGroup returns the active items of a table index partition, in index
// order.
func (b *Backend) queryGroup(ctx context.Context, table, index, attr, value string) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(table),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String("#g = :g"),
		FilterExpression:       aws.String(TTLFilterExpr()),
		ExpressionAttributeNames: withTTLName(map[string]string{
			"#g": attr,
		}),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":g":   &types.AttributeValueMemberS{Value: value},
			":now": nowValue(b.now()),
		},
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// setTTL marks an active item deleted.
func (b *Backend) setTTL(ctx context.Context, table, id string) error {
	now := b.now()
	_, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       idKey(id),
		UpdateExpression:          aws.String("SET #ttl = :now"),
		ConditionExpression:       aws.String(ExistsCondition()),
		ExpressionAttributeNames:  ttlNames(),
		ExpressionAttributeValues: map[string]types.AttributeValue{":now": nowValue(now)},
	})
	if isConditionFailed(err) {
		return ErrNotFound
	}
	return err
}

// update builds a SET (and optional REMOVE) update for the item with id that
// only applies while the item is active.
func (b *Backend) update(table, id string, set map[string]types.AttributeValue, remove ...string) *types.Update {
	names := ttlNames()
	values := map[string]types.AttributeValue{":now": nowValue(b.now())}

	var clauses []string
	for i, attr := range slices.Sorted(maps.Keys(set)) {
		name, value := fmt.Sprintf("#a%d", i), fmt.Sprintf(":v%d", i)
		names[name] = attr
		values[value] = set[attr]
		clauses = append(clauses, name+" = "+value)
	}
	expr := "SET " + strings.Join(clauses, ", ")

	if len(remove) > 0 {
		var removed []string
		for i, attr := range remove {
			name := fmt.Sprintf("#r%d", i)
			names[name] = attr
			removed = append(removed, name)
		}
		expr += " REMOVE " + strings.Join(removed, ", ")
	}

	return &types.Update{
		TableName:                 aws.String(table),
		Key:                       idKey(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String(ExistsCondition()),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
}

// existsCheck is a transaction check that the item with id is active.
func (b *Backend) existsCheck(table, id string) *types.ConditionCheck {
	return &types.ConditionCheck{
		TableName:                 aws.String(table),
		Key:                       idKey(id),
		ConditionExpression:       aws.String(ExistsCondition()),
		ExpressionAttributeNames:  ttlNames(),
		ExpressionAttributeValues: map[string]types.AttributeValue{":now": nowValue(b.now())},
	}
}

// relationshipPut records childRef under parentRef for cascade delete.
func (b *Backend) relationshipPut(parentRef, childRef, childType, childID string) *types.Put {
	return &types.Put{
		TableName: aws.String(b.config.RelationshipTable),
		Item: map[string]types.AttributeValue{
			"pk":          &types.AttributeValueMemberS{Value: b.relationshipPK(parentRef, childRef)},
			"child_ref":   &types.AttributeValueMemberS{Value: childRef},
			"parent_ref":  &types.AttributeValueMemberS{Value: parentRef},
			"child_table": &types.AttributeValueMemberS{Value: b.childTable(childType)},
			"child_key":   &types.AttributeValueMemberM{Value: idKey(childID)},
		},
	}
}

// childTable returns the table holding children of childType under a page.
func (b *Backend) childTable(childType string) string {
	if rel, ok := b.registry.Child(TypePage, childType); ok {
		return rel.ChildTableName
	}
	if childType == TypeBlock {
		return b.config.BlocksTable
	}
	return b.config.PagesTable
}

// relationshipDelete removes the record of childRef under parentRef.
func (b *Backend) relationshipDelete(parentRef, childRef string) *types.Delete {
	return &types.Delete{
		TableName: aws.String(b.config.RelationshipTable),
		Key: map[string]types.AttributeValue{
			"pk":        &types.AttributeValueMemberS{Value: b.relationshipPK(parentRef, childRef)},
			"child_ref": &types.AttributeValueMemberS{Value: childRef},
		},
	}
}

func (b *Backend) transact(ctx context.Context, items []types.TransactWriteItem) error {
	if len(items) > maxTransactItems {
		return fmt.Errorf("%d items: %w", len(items), ErrTooManyItems)
	}
	_, err := b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return err
}

// failedCondition returns the index of the first transaction item whose
// condition failed.
func failedCondition(err error) (int, bool) {
	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return 0, false
	}
	for i, reason := range txErr.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return i, true
		}
	}
	return 0, false
}

func stringValue(v string) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: v}
}

func numberValue(n int) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: fmt.Sprint(n)}
}

func boolValue(v bool) *types.AttributeValueMemberBOOL {
	return &types.AttributeValueMemberBOOL{Value: v}
}

func timeValue(t time.Time) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

// inGroup narrows an update to items whose groupAttr still holds value.
func inGroup(u *types.Update, groupAttr, value string) *types.Update {
	u.ConditionExpression = aws.String("(" + aws.ToString(u.ConditionExpression) + ") AND #grp = :grp")
	u.ExpressionAttributeNames["#grp"] = groupAttr
	u.ExpressionAttributeValues[":grp"] = stringValue(value)
	return u
}

// reorder sets order = index on every id in one transaction. The group
// condition fails the whole transaction when a listed item left the group.
func (b *Backend) reorder(ctx context.Context, table, groupAttr, groupValue string, ids []string) error {
	if len(ids) > maxTransactItems {
		return fmt.Errorf("%d items: %w", len(ids), ErrTooManyItems)
	}
	updatedAt := timeValue(b.now())
	items := make([]types.TransactWriteItem, 0, len(ids))
	for i, id := range ids {
		set := map[string]types.AttributeValue{
			"order":      numberValue(i),
			"updated_at": updatedAt,
		}
		items = append(items, types.TransactWriteItem{
			Update: inGroup(b.update(table, id, set), groupAttr, groupValue),
		})
	}
	err := b.transact(ctx, items)
	if _, ok := failedCondition(err); ok {
		return ErrGroupChanged
	}
	return err
}

func updateItemInput(u *types.Update) *dynamodb.UpdateItemInput {
	return &dynamodb.UpdateItemInput{
		TableName:                 u.TableName,
		Key:                       u.Key,
		UpdateExpression:          u.UpdateExpression,
		ConditionExpression:       u.ConditionExpression,
		ExpressionAttributeNames:  u.ExpressionAttributeNames,
		ExpressionAttributeValues: u.ExpressionAttributeValues,
	}
}

func isConditionFailed(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}
