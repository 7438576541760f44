// Package invariant holds the cross-record consistency rules shared by
// write-time mutation checks and the deletion/restoration validator.
package invariant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/store"
)

var (
	// ErrCommentDepthExceeded is returned when a reply would nest deeper than
	// entity.MaxCommentDepth.
	ErrCommentDepthExceeded = errors.New("comment depth exceeded")

	// ErrInvalidCommentDepth is returned when a stored depth disagrees with
	// its parent's depth.
	ErrInvalidCommentDepth = errors.New("comment depth does not match parent")

	// ErrInvalidTaskShape is returned when a task's detail block does not
	// match its type.
	ErrInvalidTaskShape = errors.New("task details do not match task type")

	// ErrImmutableTaskType is returned when an update changes a task's type.
	ErrImmutableTaskType = errors.New("task type is fixed at creation")
)

// SameTenant reports whether a and b belong to the same organization.
func SameTenant(a, b entity.Record) bool {
	org := a.Scope().Organization
	return org != "" && org == b.Scope().Organization
}

// SameTenantAndDepartment reports whether a and b belong to the same
// organization and the same department.
func SameTenantAndDepartment(a, b entity.Record) bool {
	if !SameTenant(a, b) {
		return false
	}
	dept := a.Scope().Department
	return dept != "" && dept == b.Scope().Department
}

// DepartmentCompatible reports whether target may be referenced from
// holder's department. Targets without a department are organization-wide.
func DepartmentCompatible(holder, target entity.Record) bool {
	td := target.Scope().Department
	return td == "" || td == holder.Scope().Department
}

// AllSameTenant reports whether every record belongs to tenant.
func AllSameTenant(records []entity.Record, tenant string) bool {
	for _, r := range records {
		if r.Scope().Organization != tenant {
			return false
		}
	}
	return true
}

// Resolution partitions referenced ids by what they resolve to.
type Resolution struct {
	Live       []entity.Record
	Tombstoned []entity.Record
	Missing    []string
}

// AllLive reports whether every id resolved to a live record.
func (r Resolution) AllLive() bool {
	return len(r.Tombstoned) == 0 && len(r.Missing) == 0
}

// Dead returns the ids that are tombstoned or missing.
func (r Resolution) Dead() []string {
	out := append([]string(nil), r.Missing...)
	for _, rec := range r.Tombstoned {
		out = append(out, rec.GetID())
	}
	return out
}

// AllResolve loads every id of kind, tombstoned ones included.
// Duplicate and empty ids are skipped.
func AllResolve(ctx context.Context, records *store.Collections, tx store.Tx, kind entity.Kind, ids []string) (Resolution, error) {
	var res Resolution
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		rec, err := records.Load(ctx, tx, entity.NewRef(kind, id))
		if errors.Is(err, store.ErrNotFound) {
			res.Missing = append(res.Missing, id)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("resolve %s#%s: %w", kind, id, err)
		}
		if rec.TombstoneState().IsDeleted {
			res.Tombstoned = append(res.Tombstoned, rec)
		} else {
			res.Live = append(res.Live, rec)
		}
	}
	return res, nil
}

// ReferenceCheck is the outcome of resolving one associative reference.
type ReferenceCheck struct {
	entity.Reference
	Resolution

	// OutOfTenant are resolved targets in another organization.
	OutOfTenant []entity.Record

	// OutOfDepartment are resolved targets in another department, for
	// references requiring the holder's department.
	OutOfDepartment []entity.Record
}

// LiveInScope counts live targets that also satisfy the scope rules.
func (c ReferenceCheck) LiveInScope() int {
	n := 0
	for _, rec := range c.Live {
		if c.outOfScope(rec) {
			continue
		}
		n++
	}
	return n
}

// BelowMinimum reports whether the reference lacks its required live targets.
func (c ReferenceCheck) BelowMinimum() bool {
	return c.MinLive > 0 && c.LiveInScope() < c.MinLive
}

func (c ReferenceCheck) outOfScope(rec entity.Record) bool {
	for _, r := range c.OutOfTenant {
		if r == rec {
			return true
		}
	}
	for _, r := range c.OutOfDepartment {
		if r == rec {
			return true
		}
	}
	return false
}

// CheckReferences resolves every associative reference of holder.
func CheckReferences(ctx context.Context, records *store.Collections, tx store.Tx, holder entity.Record) ([]ReferenceCheck, error) {
	refs := holder.References()
	out := make([]ReferenceCheck, 0, len(refs))
	for _, ref := range refs {
		if len(ref.IDs) == 0 && ref.MinLive == 0 {
			continue
		}
		res, err := AllResolve(ctx, records, tx, ref.Kind, ref.IDs)
		if err != nil {
			return nil, err
		}
		check := ReferenceCheck{Reference: ref, Resolution: res}
		for _, group := range [][]entity.Record{res.Live, res.Tombstoned} {
			for _, target := range group {
				switch {
				case !SameTenant(holder, target):
					check.OutOfTenant = append(check.OutOfTenant, target)
				case ref.SameDepartment && !DepartmentCompatible(holder, target):
					check.OutOfDepartment = append(check.OutOfDepartment, target)
				}
			}
		}
		out = append(out, check)
	}
	return out, nil
}

// CommentDepth computes the depth of a comment under parent and rejects
// chains deeper than entity.MaxCommentDepth.
func CommentDepth(parent entity.Record) (int, error) {
	var depth int
	switch p := parent.(type) {
	case *entity.Task, *entity.TaskActivity:
		depth = 1
	case *entity.TaskComment:
		depth = entity.CommentDepth(entity.ParentTaskComment, p.Depth)
	default:
		return 0, fmt.Errorf("%s cannot own comments", parent.Kind())
	}
	if depth > entity.MaxCommentDepth {
		return depth, fmt.Errorf("depth %d > %d: %w", depth, entity.MaxCommentDepth, ErrCommentDepthExceeded)
	}
	return depth, nil
}

// CheckCommentDepth verifies a stored comment's depth against its parent.
func CheckCommentDepth(c *entity.TaskComment, parent entity.Record) error {
	want, err := CommentDepth(parent)
	if err != nil {
		return err
	}
	if c.Depth != want {
		return fmt.Errorf("depth %d, parent implies %d: %w", c.Depth, want, ErrInvalidCommentDepth)
	}
	return nil
}

// TaskShape verifies that exactly the detail block matching the task type is set.
func TaskShape(t *entity.Task) error {
	want := map[entity.TaskType]bool{
		entity.TaskTypeProject:  t.Project != nil,
		entity.TaskTypeRoutine:  t.Routine != nil,
		entity.TaskTypeAssigned: t.Assigned != nil,
	}
	if !t.Type.Valid() {
		return fmt.Errorf("unknown type %q: %w", t.Type, ErrInvalidTaskShape)
	}
	for typ, present := range want {
		if typ == t.Type && !present {
			return fmt.Errorf("%s without %s details: %w", t.Type, t.Type, ErrInvalidTaskShape)
		}
		if typ != t.Type && present {
			return fmt.Errorf("%s carries %s details: %w", t.Type, typ, ErrInvalidTaskShape)
		}
	}
	return nil
}

// TaskTypeUnchanged rejects updates that change a task's type.
func TaskTypeUnchanged(before, after *entity.Task) error {
	if before.Type != after.Type {
		return fmt.Errorf("%s -> %s: %w", before.Type, after.Type, ErrImmutableTaskType)
	}
	return nil
}

// OwnerChain returns the owners of rec, nearest first, up to maxHops.
// A missing owner ends the chain and is reported through missing.
func OwnerChain(ctx context.Context, records *store.Collections, tx store.Tx, rec entity.Record, maxHops int) (chain []entity.Record, missing entity.Ref, err error) {
	cur := rec
	for hop := 0; hop < maxHops; hop++ {
		owner := cur.Owner()
		if owner.IsZero() {
			return chain, entity.Ref{}, nil
		}
		next, err := records.Load(ctx, tx, owner)
		if errors.Is(err, store.ErrNotFound) {
			return chain, owner, nil
		}
		if err != nil {
			return chain, entity.Ref{}, fmt.Errorf("load owner %s: %w", owner, err)
		}
		chain = append(chain, next)
		cur = next
	}
	return chain, entity.Ref{}, nil
}
