package dynamo_test

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/dynamo"
)

var testNow = time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)

// fakeAPI keeps items in memory, applies transaction puts and records every
// write. Conditions are not evaluated; tests script failures instead.
type fakeAPI struct {
	mu      sync.Mutex
	tables  map[string][]map[string]types.AttributeValue
	updates []*dynamodb.UpdateItemInput
	txs     [][]types.TransactWriteItem
	queries []*dynamodb.QueryInput

	txErr     error
	updateErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{tables: make(map[string][]map[string]types.AttributeValue)}
}

func (f *fakeAPI) put(table string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], item)
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.tables[aws.ToString(in.TableName)] {
		if matches(item, in.Key) {
			return &dynamodb.GetItemOutput{Item: item}, nil
		}
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, in)

	attr, value := "pk", in.ExpressionAttributeValues[":pk"]
	if in.IndexName != nil {
		attr, value = in.ExpressionAttributeNames["#g"], in.ExpressionAttributeValues[":g"]
	}
	var out []map[string]types.AttributeValue
	for _, item := range f.tables[aws.ToString(in.TableName)] {
		if !matches(item, map[string]types.AttributeValue{attr: value}) {
			continue
		}
		if in.FilterExpression != nil && dynamo.IsDeleted(item, testNow) {
			continue
		}
		out = append(out, item)
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeAPI) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, in.TransactItems)
	if f.txErr != nil {
		return nil, f.txErr
	}
	for _, item := range in.TransactItems {
		if item.Put != nil {
			table := aws.ToString(item.Put.TableName)
			f.tables[table] = append(f.tables[table], item.Put.Item)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeAPI) lastTx() []types.TransactWriteItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.txs) == 0 {
		return nil
	}
	return f.txs[len(f.txs)-1]
}

func (f *fakeAPI) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.txs) + len(f.updates)
}

func matches(item, key map[string]types.AttributeValue) bool {
	for k, want := range key {
		got, ok := item[k].(*types.AttributeValueMemberS)
		w, wok := want.(*types.AttributeValueMemberS)
		if !ok || !wok || got.Value != w.Value {
			return false
		}
	}
	return true
}

// cancelled builds a transaction cancellation whose condition failed at
// index failed.
func cancelled(n, failed int) error {
	reasons := make([]types.CancellationReason, n)
	for i := range reasons {
		reasons[i].Code = aws.String("None")
	}
	reasons[failed].Code = aws.String("ConditionalCheckFailed")
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

// setValue returns the value an update expression assigns to attr.
func setValue(names map[string]string, values map[string]types.AttributeValue, attr string) (string, bool) {
	for name, a := range names {
		if a != attr || !strings.HasPrefix(name, "#a") {
			continue
		}
		switch v := values[":v"+strings.TrimPrefix(name, "#a")].(type) {
		case *types.AttributeValueMemberS:
			return v.Value, true
		case *types.AttributeValueMemberN:
			return v.Value, true
		case *types.AttributeValueMemberBOOL:
			return strconv.FormatBool(v.Value), true
		}
	}
	return "", false
}

func keyID(key map[string]types.AttributeValue) string {
	if v, ok := key["id"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func sequence(ids ...string) func() string {
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		ids = ids[1:]
		return id
	}
}

func newBackend(api *fakeAPI, ids ...string) *dynamo.Backend {
	return dynamo.New(api, dynamo.DefaultConfig(),
		dynamo.WithClock(func() time.Time { return testNow }),
		dynamo.WithIDs(sequence(ids...)),
	)
}
