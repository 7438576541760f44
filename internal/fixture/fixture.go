// Package fixture builds in-memory tenant trees for tests.
package fixture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/store"
)

// Epoch is the starting time of every fixture clock.
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Clock is a settable clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the clock's time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// World is a memory backend with collections sharing a test clock.
type World struct {
	Backend *store.MemoryBackend
	Records *store.Collections
	Clock   *Clock
}

// New creates an empty world.
func New() *World {
	clk := &Clock{now: Epoch}
	return &World{
		Backend: store.NewMemoryBackend(),
		Records: store.NewCollections(nil, clk.Now),
		Clock:   clk,
	}
}

// Do runs fn in a committed transaction and fails the test on error.
func (w *World) Do(t testing.TB, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	ctx := context.Background()
	tx, err := w.Backend.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		t.Fatalf("transaction: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// Seed inserts live records in order.
func (w *World) Seed(t testing.TB, recs ...entity.Record) {
	t.Helper()
	w.Do(t, func(ctx context.Context, tx store.Tx) error {
		for _, r := range recs {
			if err := w.Records.Insert(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// Tombstone soft-deletes records one by one, without cascading.
func (w *World) Tombstone(t testing.TB, recs ...entity.Record) {
	t.Helper()
	w.Do(t, func(ctx context.Context, tx store.Tx) error {
		for _, r := range recs {
			if _, _, err := w.Records.SoftDelete(ctx, tx, entity.RefOf(r), "fixture"); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads the committed state of a record, tombstoned or not.
func (w *World) Load(t testing.TB, r entity.Record) entity.Record {
	t.Helper()
	ctx := context.Background()
	tx, err := w.Backend.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	rec, err := w.Records.Load(ctx, tx, entity.RefOf(r))
	if err != nil {
		t.Fatalf("load %s: %v", entity.RefOf(r), err)
	}
	return rec
}

// Deleted reports whether the committed record is tombstoned.
func (w *World) Deleted(t testing.TB, r entity.Record) bool {
	t.Helper()
	return w.Load(t, r).TombstoneState().IsDeleted
}

// Tx starts a transaction the test must finish.
func (w *World) Tx(t testing.TB) store.Tx {
	t.Helper()
	tx, err := w.Backend.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return tx
}

// Org builds an organization.
func Org(id string) *entity.Organization {
	return &entity.Organization{
		Meta:  entity.Meta{ID: id},
		Name:  "Org " + id,
		Email: id + "@org.example.com",
	}
}

// Dept builds a department of org.
func Dept(id string, org *entity.Organization) *entity.Department {
	return &entity.Department{
		Meta:         entity.Meta{ID: id},
		Organization: org.ID,
		Name:         "Dept " + id,
	}
}

// User builds a user of dept with role.
func User(id string, dept *entity.Department, role entity.Role) *entity.User {
	return &entity.User{
		Meta:         entity.Meta{ID: id},
		Organization: dept.Organization,
		Department:   dept.ID,
		FirstName:    "User",
		LastName:     id,
		Email:        id + "@user.example.com",
		Role:         role,
	}
}

// HOD builds the head of dept.
func HOD(id string, dept *entity.Department) *entity.User {
	u := User(id, dept, entity.RoleManager)
	u.IsHOD = true
	return u
}

func task(id string, dept *entity.Department, creator *entity.User, typ entity.TaskType) *entity.Task {
	return &entity.Task{
		Meta:         entity.Meta{ID: id},
		Organization: dept.Organization,
		Department:   dept.ID,
		Type:         typ,
		Title:        "Task " + id,
		Status:       entity.TaskStatusToDo,
		CreatedBy:    creator.ID,
	}
}

// AssignedTask builds an assigned task of dept.
func AssignedTask(id string, dept *entity.Department, creator *entity.User, assignees ...*entity.User) *entity.Task {
	t := task(id, dept, creator, entity.TaskTypeAssigned)
	t.Assigned = &entity.AssignedDetails{}
	for _, u := range assignees {
		t.Assigned.Assignees = append(t.Assigned.Assignees, u.ID)
	}
	return t
}

// ProjectTask builds a project task of dept outsourced to vendor.
func ProjectTask(id string, dept *entity.Department, creator *entity.User, vendor *entity.Vendor) *entity.Task {
	t := task(id, dept, creator, entity.TaskTypeProject)
	t.Project = &entity.ProjectDetails{Vendor: vendor.ID, EstimatedCost: 100}
	return t
}

// RoutineTask builds a routine task of dept consuming materials.
func RoutineTask(id string, dept *entity.Department, creator *entity.User, materials ...*entity.Material) *entity.Task {
	t := task(id, dept, creator, entity.TaskTypeRoutine)
	t.Routine = &entity.RoutineDetails{}
	for _, m := range materials {
		t.Routine.Materials = append(t.Routine.Materials, entity.MaterialUsage{Material: m.ID, Quantity: 1})
	}
	t.SyncMaterialIDs()
	return t
}

// Activity builds an activity on t.
func Activity(id string, t *entity.Task, creator *entity.User) *entity.TaskActivity {
	return &entity.TaskActivity{
		Meta:         entity.Meta{ID: id},
		Organization: t.Organization,
		Department:   t.Department,
		Task:         t.ID,
		Description:  "Activity " + id,
		CreatedBy:    creator.ID,
	}
}

// Comment builds a comment under a task, activity or comment. Depth is
// derived from the parent.
func Comment(id string, parent entity.Record, author *entity.User) *entity.TaskComment {
	c := &entity.TaskComment{
		Meta:      entity.Meta{ID: id},
		ParentID:  parent.GetID(),
		Body:      "Comment " + id,
		CreatedBy: author.ID,
	}
	scope := parent.Scope()
	c.Organization, c.Department = scope.Organization, scope.Department
	switch p := parent.(type) {
	case *entity.Task:
		c.ParentKind, c.Task = entity.ParentTask, p.ID
	case *entity.TaskActivity:
		c.ParentKind, c.Task = entity.ParentTaskActivity, p.Task
	case *entity.TaskComment:
		c.ParentKind, c.Task = entity.ParentTaskComment, p.Task
	}
	c.Depth = entity.CommentDepth(c.ParentKind, parentDepth(parent))
	return c
}

func parentDepth(parent entity.Record) int {
	if c, ok := parent.(*entity.TaskComment); ok {
		return c.Depth
	}
	return 0
}

// Attachment builds an attachment under a task, activity or comment.
func Attachment(id string, parent entity.Record, uploader *entity.User) *entity.Attachment {
	a := &entity.Attachment{
		Meta:       entity.Meta{ID: id},
		ParentKind: entity.ParentKind(parent.Kind()),
		ParentID:   parent.GetID(),
		FileName:   id + ".pdf",
		URL:        "https://files.example.com/" + id + ".pdf",
		Size:       1024,
		UploadedBy: uploader.ID,
	}
	scope := parent.Scope()
	a.Organization, a.Department = scope.Organization, scope.Department
	return a
}

// Vendor builds a vendor of org.
func Vendor(id string, org *entity.Organization) *entity.Vendor {
	return &entity.Vendor{
		Meta:         entity.Meta{ID: id},
		Organization: org.ID,
		Name:         "Vendor " + id,
	}
}

// Material builds a material of org, optionally scoped to dept.
func Material(id string, org *entity.Organization, dept *entity.Department) *entity.Material {
	m := &entity.Material{
		Meta:         entity.Meta{ID: id},
		Organization: org.ID,
		Name:         "Material " + id,
		Unit:         "pcs",
	}
	if dept != nil {
		m.Department = dept.ID
	}
	return m
}

// Notification builds a notification of org for recipients.
func Notification(id string, org *entity.Organization, subject entity.Record, recipients ...*entity.User) *entity.Notification {
	n := &entity.Notification{
		Meta:         entity.Meta{ID: id},
		Organization: org.ID,
		Title:        "Notification " + id,
	}
	if subject != nil {
		n.SubjectKind, n.SubjectID = subject.Kind(), subject.GetID()
	}
	for _, u := range recipients {
		n.Recipients = append(n.Recipients, u.ID)
	}
	return n
}
