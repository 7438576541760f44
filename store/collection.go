package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/internal/shard"
)

// Collection is the typed handle for one record kind. Every read defaults to
// live records; every state change goes through a Tx.
type Collection[T entity.Record] struct {
	kind      entity.Kind
	newRecord func() T
	registry  *entity.Registry
	now       func() time.Time
}

// NewCollection creates a typed handle. newRecord must return a fresh,
// non-nil record of the kind.
func NewCollection[T entity.Record](kind entity.Kind, newRecord func() T, registry *entity.Registry, now func() time.Time) *Collection[T] {
	if registry == nil {
		registry = entity.DefaultRegistry()
	}
	if now == nil {
		now = time.Now
	}
	return &Collection[T]{kind: kind, newRecord: newRecord, registry: registry, now: now}
}

// Kind returns the record kind of the collection.
func (c *Collection[T]) Kind() entity.Kind {
	return c.kind
}

// Get returns a live record or ErrNotFound.
func (c *Collection[T]) Get(ctx context.Context, tx Tx, id string) (T, error) {
	return c.Lookup(ctx, tx, id, Live)
}

// Lookup returns a record visible under vis or ErrNotFound.
func (c *Collection[T]) Lookup(ctx context.Context, tx Tx, id string, vis Visibility) (T, error) {
	var zero T
	item, err := tx.Get(ctx, entity.NewRef(c.kind, id))
	if err != nil {
		return zero, err
	}
	if !vis.Admits(item.IsDeleted) {
		return zero, fmt.Errorf("%s#%s (%s): %w", c.kind, id, vis, ErrNotFound)
	}
	return c.Decode(item)
}

// Find returns the records matching f. The filter's kind is forced to the
// collection's kind.
func (c *Collection[T]) Find(ctx context.Context, tx Tx, f Filter) ([]T, error) {
	f.Kind = c.kind
	items, err := tx.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		rec, err := c.Decode(it)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of records matching f.
func (c *Collection[T]) Count(ctx context.Context, tx Tx, f Filter) (int, error) {
	f.Kind = c.kind
	items, err := tx.Query(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Insert stores a new live record.
func (c *Collection[T]) Insert(ctx context.Context, tx Tx, rec T) error {
	meta := rec.Metadata()
	if meta.ID == "" {
		return fmt.Errorf("insert %s: missing id", c.kind)
	}
	if rec.TombstoneState().IsDeleted {
		return fmt.Errorf("insert %s#%s: record is tombstoned", c.kind, meta.ID)
	}
	now := c.now().UTC()
	meta.Version = 0
	meta.CreatedAt = now
	meta.UpdatedAt = now
	return c.write(ctx, tx, rec)
}

// Update stores changes to a live record. rec.Version must match the stored
// version. Tombstone fields are preserved from the stored record.
func (c *Collection[T]) Update(ctx context.Context, tx Tx, rec T) error {
	cur, err := c.Get(ctx, tx, rec.GetID())
	if err != nil {
		return err
	}
	meta := rec.Metadata()
	if meta.Version != cur.Metadata().Version {
		return fmt.Errorf("%s#%s: version %d, stored %d: %w",
			c.kind, meta.ID, meta.Version, cur.Metadata().Version, ErrConcurrentModification)
	}
	*rec.TombstoneState() = *cur.TombstoneState()
	meta.CreatedAt = cur.Metadata().CreatedAt
	meta.UpdatedAt = c.now().UTC()
	return c.write(ctx, tx, rec)
}

// SoftDelete tombstones a record. Tombstoning an already tombstoned record
// changes nothing and reports changed=false.
func (c *Collection[T]) SoftDelete(ctx context.Context, tx Tx, id, actorID string) (T, bool, error) {
	rec, err := c.Lookup(ctx, tx, id, IncludeTombstoned)
	if err != nil {
		return rec, false, err
	}
	now := c.now().UTC()
	if !rec.TombstoneState().MarkDeleted(now, actorID) {
		return rec, false, nil
	}
	rec.Metadata().UpdatedAt = now
	if err := c.write(ctx, tx, rec); err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// Restore revives a tombstoned record. Restoring a live record changes
// nothing and reports changed=false.
func (c *Collection[T]) Restore(ctx context.Context, tx Tx, id string) (T, bool, error) {
	rec, err := c.Lookup(ctx, tx, id, IncludeTombstoned)
	if err != nil {
		return rec, false, err
	}
	if !rec.TombstoneState().Clear() {
		return rec, false, nil
	}
	rec.Metadata().UpdatedAt = c.now().UTC()
	if err := c.write(ctx, tx, rec); err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// Delete always fails: records are only ever tombstoned.
func (c *Collection[T]) Delete(_ context.Context, _ Tx, id string) error {
	return fmt.Errorf("delete %s#%s: %w", c.kind, id, ErrDirectDeletionForbidden)
}

func (c *Collection[T]) write(ctx context.Context, tx Tx, rec T) error {
	item, err := c.Encode(rec)
	if err != nil {
		return err
	}
	if err := tx.Put(ctx, item); err != nil {
		return err
	}
	rec.Metadata().Version = item.Version
	return nil
}

// Encode renders a record with its managed attributes.
func (c *Collection[T]) Encode(rec T) (*Item, error) {
	if rec.Kind() != c.kind {
		return nil, fmt.Errorf("encode: %s record in %s collection", rec.Kind(), c.kind)
	}
	raw, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal %s#%s: %w", c.kind, rec.GetID(), err)
	}

	ref := entity.RefOf(rec)
	scope := rec.Scope()
	raw[AttrKind] = &types.AttributeValueMemberS{Value: string(c.kind)}
	raw[AttrRef] = &types.AttributeValueMemberS{Value: ref.String()}
	raw[AttrOrganization] = &types.AttributeValueMemberS{Value: scope.Organization}
	if scope.Department != "" {
		raw[AttrDepartment] = &types.AttributeValueMemberS{Value: scope.Department}
	} else {
		delete(raw, AttrDepartment)
	}
	if owner := rec.Owner(); !owner.IsZero() {
		raw[AttrParentRef] = &types.AttributeValueMemberS{Value: owner.String()}
	}

	ts := rec.TombstoneState()
	delete(raw, AttrTTL)
	delete(raw, AttrUniqueKeys)
	if ts.IsDeleted {
		if ts.DeletedAt != nil {
			if exp := ExpiresAt(*ts.DeletedAt, c.registry.Retention(c.kind)); !exp.IsZero() {
				raw[AttrTTL] = ttlAttr(exp)
			}
		}
	} else if keys := UniqueKeys(rec); len(keys) > 0 {
		av, err := attributevalue.Marshal(keys)
		if err != nil {
			return nil, fmt.Errorf("marshal unique keys: %w", err)
		}
		raw[AttrUniqueKeys] = av
	}

	return ItemFromRaw(raw), nil
}

// Decode converts an item to a typed record.
func (c *Collection[T]) Decode(item *Item) (T, error) {
	rec := c.newRecord()
	if item.Kind != c.kind {
		var zero T
		return zero, fmt.Errorf("decode: %s item in %s collection", item.Kind, c.kind)
	}
	if err := attributevalue.UnmarshalMap(item.Raw, rec); err != nil {
		var zero T
		return zero, fmt.Errorf("unmarshal %s: %w", item.Ref(), err)
	}
	return rec, nil
}

// UniqueKeys returns the unique constraint keys a live record holds.
func UniqueKeys(rec entity.Record) []string {
	uf, ok := rec.(entity.UniqueFielder)
	if !ok {
		return nil
	}
	var keys []string
	for _, f := range uf.UniqueFields() {
		keys = append(keys, UniqueKey(rec.Kind(), f))
	}
	return keys
}

// UniqueKey returns the constraint key of one unique field.
func UniqueKey(kind entity.Kind, f entity.UniqueField) string {
	return shard.UniqueConstraintPK(f.Scope, string(kind), f.Field, f.Value)
}
