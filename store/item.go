package store

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/entity"
)

// Attribute names managed by the store on every record.
const (
	AttrID           = "id"
	AttrKind         = "entity_type"
	AttrRef          = "entity_ref"
	AttrParentRef    = "parent_ref"
	AttrOrganization = "organization"
	AttrDepartment   = "department"
	AttrVersion      = "version"
	AttrIsDeleted    = "is_deleted"
	AttrDeletedAt    = "deleted_at"
	AttrCreatedAt    = "created_at"
	AttrTTL          = "ttl"
	AttrUniqueKeys   = "_unique_keys"
)

// Item is a stored record in its attribute-map form, with the managed
// attributes decoded for the backends.
type Item struct {
	// Raw is the full attribute map.
	Raw map[string]types.AttributeValue

	Kind         entity.Kind
	ID           string
	Version      int64
	ParentRef    string
	Organization string
	Department   string
	IsDeleted    bool

	// TTL is the unix time after which the store may purge the record
	// (zero when never).
	TTL int64

	// UniqueKeys are the hashed unique constraint keys the record holds.
	// Only live records hold keys.
	UniqueKeys []string
}

// Ref returns the type-qualified reference of the item.
func (i *Item) Ref() entity.Ref {
	return entity.NewRef(i.Kind, i.ID)
}

// ItemFromRaw decodes the managed attributes of a raw attribute map.
func ItemFromRaw(raw map[string]types.AttributeValue) *Item {
	item := &Item{Raw: raw}

	item.Kind = entity.Kind(stringAttr(raw, AttrKind))
	item.ID = stringAttr(raw, AttrID)
	item.ParentRef = stringAttr(raw, AttrParentRef)
	item.Organization = stringAttr(raw, AttrOrganization)
	item.Department = stringAttr(raw, AttrDepartment)

	if v, ok := raw[AttrVersion].(*types.AttributeValueMemberN); ok {
		item.Version, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := raw[AttrTTL].(*types.AttributeValueMemberN); ok {
		item.TTL, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := raw[AttrIsDeleted].(*types.AttributeValueMemberBOOL); ok {
		item.IsDeleted = v.Value
	}
	if v, ok := raw[AttrUniqueKeys]; ok {
		_ = attributevalue.Unmarshal(v, &item.UniqueKeys)
	}

	return item
}

// setVersion updates the version both on the item and in Raw.
func (i *Item) setVersion(v int64) {
	i.Version = v
	i.Raw[AttrVersion] = &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

// clone copies the item so the caller can't mutate stored state.
// Attribute values are replaced, never mutated in place, so a shallow copy
// of Raw is sufficient.
func (i *Item) clone() *Item {
	if i == nil {
		return nil
	}
	out := *i
	out.Raw = make(map[string]types.AttributeValue, len(i.Raw))
	for k, v := range i.Raw {
		out.Raw[k] = v
	}
	if i.UniqueKeys != nil {
		out.UniqueKeys = append([]string(nil), i.UniqueKeys...)
	}
	return &out
}

func stringAttr(raw map[string]types.AttributeValue, name string) string {
	if v, ok := raw[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
