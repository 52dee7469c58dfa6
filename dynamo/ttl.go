package dynamo

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ttlAttr is the attribute DynamoDB TTL is enabled on. A set value marks the
// item deleted; DynamoDB removes it some time after.
const ttlAttr = "ttl"

// liveFilter matches items that have not been soft deleted at :now.
const liveFilter = "attribute_not_exists(#ttl) OR #ttl > :now"

// IsDeleted reports whether item carries a TTL at or before now.
func IsDeleted(item map[string]types.AttributeValue, now time.Time) bool {
	ttl, ok := expiry(item)
	return ok && ttl <= now.Unix()
}

// expiry returns the TTL of item in Unix seconds. Items without a numeric
// TTL have none.
func expiry(item map[string]types.AttributeValue) (int64, bool) {
	n, ok := item[ttlAttr].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	ttl, err := strconv.ParseInt(n.Value, 10, 64)
	return ttl, err == nil
}

// TTLFilterExpr returns the filter expression excluding deleted items. It
// needs the #ttl name and the :now value.
func TTLFilterExpr() string { return liveFilter }

// ExistsCondition returns the condition expression for an item that exists
// and is not deleted.
func ExistsCondition() string {
	return "attribute_exists(id) AND (" + liveFilter + ")"
}

func ttlNames() map[string]string {
	return map[string]string{"#ttl": ttlAttr}
}

// withTTLName returns names with the #ttl placeholder added.
func withTTLName(names map[string]string) map[string]string {
	names["#ttl"] = ttlAttr
	return names
}

func nowValue(now time.Time) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)}
}
