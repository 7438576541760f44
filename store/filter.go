package store

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/entity"
)

// Visibility selects records by tombstone state.
type Visibility int

const (
	// Live returns only non-tombstoned records. It is the default.
	Live Visibility = iota

	// IncludeTombstoned returns live and tombstoned records.
	IncludeTombstoned

	// OnlyTombstoned returns only tombstoned records.
	OnlyTombstoned
)

// Admits reports whether a record in the given tombstone state is visible.
func (v Visibility) Admits(deleted bool) bool {
	switch v {
	case IncludeTombstoned:
		return true
	case OnlyTombstoned:
		return deleted
	default:
		return !deleted
	}
}

func (v Visibility) String() string {
	switch v {
	case IncludeTombstoned:
		return "include_tombstoned"
	case OnlyTombstoned:
		return "only_tombstoned"
	default:
		return "live"
	}
}

// Condition compares the attribute at Path (dot separated for nested maps)
// with Value.
type Condition struct {
	Path  string
	Value types.AttributeValue
}

// Eq builds a string equality condition.
func Eq(path, value string) Condition {
	return Condition{Path: path, Value: &types.AttributeValueMemberS{Value: value}}
}

// Filter selects records of one kind.
type Filter struct {
	Kind entity.Kind

	// Organization restricts results to one tenant.
	Organization string

	// Department restricts results to one department.
	Department string

	// ParentRef restricts results to the children of one owner.
	ParentRef string

	// Equals conditions must all hold.
	Equals []Condition

	// Contains conditions require the list attribute at Path to contain Value.
	// All must hold.
	Contains []Condition

	// ExcludeIDs drops the listed records.
	ExcludeIDs []string

	// Visibility selects by tombstone state (default Live).
	Visibility Visibility

	// Limit caps the number of results (0 = no limit).
	Limit int
}

// Match reports whether an item satisfies the filter.
func (f Filter) Match(item *Item) bool {
	if item == nil {
		return false
	}
	if f.Kind != "" && item.Kind != f.Kind {
		return false
	}
	if !f.Visibility.Admits(item.IsDeleted) {
		return false
	}
	if f.Organization != "" && item.Organization != f.Organization {
		return false
	}
	if f.Department != "" && item.Department != f.Department {
		return false
	}
	if f.ParentRef != "" && item.ParentRef != f.ParentRef {
		return false
	}
	for _, id := range f.ExcludeIDs {
		if item.ID == id {
			return false
		}
	}
	for _, c := range f.Equals {
		if !attrEqual(lookupPath(item.Raw, c.Path), c.Value) {
			return false
		}
	}
	for _, c := range f.Contains {
		if !listContains(lookupPath(item.Raw, c.Path), c.Value) {
			return false
		}
	}
	return true
}

func lookupPath(raw map[string]types.AttributeValue, path string) types.AttributeValue {
	parts := strings.Split(path, ".")
	var cur types.AttributeValue
	m := raw
	for i, p := range parts {
		v, ok := m[p]
		if !ok {
			return nil
		}
		cur = v
		if i == len(parts)-1 {
			break
		}
		nested, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return nil
		}
		m = nested.Value
	}
	return cur
}

func attrEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func listContains(list, v types.AttributeValue) bool {
	switch l := list.(type) {
	case *types.AttributeValueMemberL:
		for _, e := range l.Value {
			if attrEqual(e, v) {
				return true
			}
		}
	case *types.AttributeValueMemberSS:
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			return false
		}
		for _, e := range l.Value {
			if e == s.Value {
				return true
			}
		}
	}
	return false
}
