package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ExpiresAt returns when a record tombstoned at deletedAt becomes eligible
// for physical purge. It returns the zero time when retention is zero.
func ExpiresAt(deletedAt time.Time, retention time.Duration) time.Time {
	if retention <= 0 || deletedAt.IsZero() {
		return time.Time{}
	}
	return deletedAt.Add(retention)
}

// IsExpired checks if an item carries a TTL at or before now.
func IsExpired(item *Item, now time.Time) bool {
	return item.TTL > 0 && item.TTL <= now.Unix()
}

// ttlAttr returns the TTL attribute value for an expiry time.
func ttlAttr(at time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(at.Unix(), 10)}
}

// VisibilityFilterExpr returns the filter expression selecting records by
// tombstone state. It returns an empty expression for IncludeTombstoned.
// Use with VisibilityFilterNames and VisibilityFilterValues.
func VisibilityFilterExpr(v Visibility) string {
	switch v {
	case IncludeTombstoned:
		return ""
	case OnlyTombstoned:
		return "#is_deleted = :true"
	default:
		return "(attribute_not_exists(#is_deleted) OR #is_deleted = :false)"
	}
}

// VisibilityFilterNames returns expression attribute names for the visibility filter.
func VisibilityFilterNames(v Visibility) map[string]string {
	if v == IncludeTombstoned {
		return nil
	}
	return map[string]string{"#is_deleted": AttrIsDeleted}
}

// VisibilityFilterValues returns expression attribute values for the visibility filter.
func VisibilityFilterValues(v Visibility) map[string]types.AttributeValue {
	switch v {
	case IncludeTombstoned:
		return nil
	case OnlyTombstoned:
		return map[string]types.AttributeValue{":true": &types.AttributeValueMemberBOOL{Value: true}}
	default:
		return map[string]types.AttributeValue{":false": &types.AttributeValueMemberBOOL{Value: false}}
	}
}

// mergeExprNames merges multiple expression attribute name maps.
func mergeExprNames(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// mergeExprValues merges multiple expression attribute value maps.
func mergeExprValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
