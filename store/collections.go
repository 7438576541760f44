package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jacentio/canopy/entity"
)

// Collections bundles the typed handle of every kind. It is built once at
// process start and passed to the components that need record access.
type Collections struct {
	Organizations *Collection[*entity.Organization]
	Departments   *Collection[*entity.Department]
	Users         *Collection[*entity.User]
	Tasks         *Collection[*entity.Task]
	Activities    *Collection[*entity.TaskActivity]
	Comments      *Collection[*entity.TaskComment]
	Attachments   *Collection[*entity.Attachment]
	Materials     *Collection[*entity.Material]
	Vendors       *Collection[*entity.Vendor]
	Notifications *Collection[*entity.Notification]

	registry *entity.Registry
	now      func() time.Time
}

// NewCollections creates the handles for every kind. A nil registry selects
// entity.DefaultRegistry and a nil clock selects time.Now.
func NewCollections(registry *entity.Registry, now func() time.Time) *Collections {
	if registry == nil {
		registry = entity.DefaultRegistry()
	}
	if now == nil {
		now = time.Now
	}
	return &Collections{
		Organizations: NewCollection(entity.KindOrganization, func() *entity.Organization { return &entity.Organization{} }, registry, now),
		Departments:   NewCollection(entity.KindDepartment, func() *entity.Department { return &entity.Department{} }, registry, now),
		Users:         NewCollection(entity.KindUser, func() *entity.User { return &entity.User{} }, registry, now),
		Tasks:         NewCollection(entity.KindTask, func() *entity.Task { return &entity.Task{} }, registry, now),
		Activities:    NewCollection(entity.KindTaskActivity, func() *entity.TaskActivity { return &entity.TaskActivity{} }, registry, now),
		Comments:      NewCollection(entity.KindTaskComment, func() *entity.TaskComment { return &entity.TaskComment{} }, registry, now),
		Attachments:   NewCollection(entity.KindAttachment, func() *entity.Attachment { return &entity.Attachment{} }, registry, now),
		Materials:     NewCollection(entity.KindMaterial, func() *entity.Material { return &entity.Material{} }, registry, now),
		Vendors:       NewCollection(entity.KindVendor, func() *entity.Vendor { return &entity.Vendor{} }, registry, now),
		Notifications: NewCollection(entity.KindNotification, func() *entity.Notification { return &entity.Notification{} }, registry, now),
		registry:      registry,
		now:           now,
	}
}

// Registry returns the ownership catalog.
func (c *Collections) Registry() *entity.Registry {
	return c.registry
}

// Now returns the current time of the collections' clock.
func (c *Collections) Now() time.Time {
	return c.now()
}

// recordCollection is the kind-erased view of a Collection.
type recordCollection interface {
	lookupRecord(ctx context.Context, tx Tx, id string, vis Visibility) (entity.Record, error)
	findRecords(ctx context.Context, tx Tx, f Filter) ([]entity.Record, error)
	softDeleteRecord(ctx context.Context, tx Tx, id, actorID string) (entity.Record, bool, error)
	restoreRecord(ctx context.Context, tx Tx, id string) (entity.Record, bool, error)
	insertRecord(ctx context.Context, tx Tx, rec entity.Record) error
	updateRecord(ctx context.Context, tx Tx, rec entity.Record) error
	deleteRecord(ctx context.Context, tx Tx, id string) error
}

func (c *Collection[T]) lookupRecord(ctx context.Context, tx Tx, id string, vis Visibility) (entity.Record, error) {
	rec, err := c.Lookup(ctx, tx, id, vis)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Collection[T]) findRecords(ctx context.Context, tx Tx, f Filter) ([]entity.Record, error) {
	recs, err := c.Find(ctx, tx, f)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Record, len(recs))
	for i, r := range recs {
		out[i] = r
	}
	return out, nil
}

func (c *Collection[T]) softDeleteRecord(ctx context.Context, tx Tx, id, actorID string) (entity.Record, bool, error) {
	rec, changed, err := c.SoftDelete(ctx, tx, id, actorID)
	if err != nil {
		return nil, false, err
	}
	return rec, changed, nil
}

func (c *Collection[T]) restoreRecord(ctx context.Context, tx Tx, id string) (entity.Record, bool, error) {
	rec, changed, err := c.Restore(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	return rec, changed, nil
}

func (c *Collection[T]) insertRecord(ctx context.Context, tx Tx, rec entity.Record) error {
	typed, ok := rec.(T)
	if !ok {
		return fmt.Errorf("insert: %s record in %s collection", rec.Kind(), c.kind)
	}
	return c.Insert(ctx, tx, typed)
}

func (c *Collection[T]) updateRecord(ctx context.Context, tx Tx, rec entity.Record) error {
	typed, ok := rec.(T)
	if !ok {
		return fmt.Errorf("update: %s record in %s collection", rec.Kind(), c.kind)
	}
	return c.Update(ctx, tx, typed)
}

func (c *Collection[T]) deleteRecord(ctx context.Context, tx Tx, id string) error {
	return c.Delete(ctx, tx, id)
}

// of dispatches a kind to its typed handle.
func (c *Collections) of(kind entity.Kind) (recordCollection, error) {
	switch kind {
	case entity.KindOrganization:
		return c.Organizations, nil
	case entity.KindDepartment:
		return c.Departments, nil
	case entity.KindUser:
		return c.Users, nil
	case entity.KindTask:
		return c.Tasks, nil
	case entity.KindTaskActivity:
		return c.Activities, nil
	case entity.KindTaskComment:
		return c.Comments, nil
	case entity.KindAttachment:
		return c.Attachments, nil
	case entity.KindMaterial:
		return c.Materials, nil
	case entity.KindVendor:
		return c.Vendors, nil
	case entity.KindNotification:
		return c.Notifications, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// Load returns a record, live or tombstoned.
func (c *Collections) Load(ctx context.Context, tx Tx, ref entity.Ref) (entity.Record, error) {
	return c.Lookup(ctx, tx, ref, IncludeTombstoned)
}

// Lookup returns a record visible under vis.
func (c *Collections) Lookup(ctx context.Context, tx Tx, ref entity.Ref, vis Visibility) (entity.Record, error) {
	col, err := c.of(ref.Kind)
	if err != nil {
		return nil, err
	}
	return col.lookupRecord(ctx, tx, ref.ID, vis)
}

// Find returns records of f.Kind matching f.
func (c *Collections) Find(ctx context.Context, tx Tx, f Filter) ([]entity.Record, error) {
	col, err := c.of(f.Kind)
	if err != nil {
		return nil, err
	}
	return col.findRecords(ctx, tx, f)
}

// Count returns the number of records of f.Kind matching f.
func (c *Collections) Count(ctx context.Context, tx Tx, f Filter) (int, error) {
	if _, err := c.of(f.Kind); err != nil {
		return 0, err
	}
	items, err := tx.Query(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Children returns the records of kind owned by parent.
func (c *Collections) Children(ctx context.Context, tx Tx, parent entity.Ref, kind entity.Kind, vis Visibility) ([]entity.Record, error) {
	return c.Find(ctx, tx, Filter{Kind: kind, ParentRef: parent.String(), Visibility: vis})
}

// SoftDelete tombstones one record.
func (c *Collections) SoftDelete(ctx context.Context, tx Tx, ref entity.Ref, actorID string) (entity.Record, bool, error) {
	col, err := c.of(ref.Kind)
	if err != nil {
		return nil, false, err
	}
	return col.softDeleteRecord(ctx, tx, ref.ID, actorID)
}

// Restore revives one record.
func (c *Collections) Restore(ctx context.Context, tx Tx, ref entity.Ref) (entity.Record, bool, error) {
	col, err := c.of(ref.Kind)
	if err != nil {
		return nil, false, err
	}
	return col.restoreRecord(ctx, tx, ref.ID)
}

// Insert stores a new live record of any kind.
func (c *Collections) Insert(ctx context.Context, tx Tx, rec entity.Record) error {
	col, err := c.of(rec.Kind())
	if err != nil {
		return err
	}
	return col.insertRecord(ctx, tx, rec)
}

// Save stores changes to a live record of any kind.
func (c *Collections) Save(ctx context.Context, tx Tx, rec entity.Record) error {
	col, err := c.of(rec.Kind())
	if err != nil {
		return err
	}
	return col.updateRecord(ctx, tx, rec)
}

// Delete always fails with ErrDirectDeletionForbidden.
func (c *Collections) Delete(ctx context.Context, tx Tx, ref entity.Ref) error {
	col, err := c.of(ref.Kind)
	if err != nil {
		return err
	}
	return col.deleteRecord(ctx, tx, ref.ID)
}
