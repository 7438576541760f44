package cascade

import (
	"context"
	"fmt"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/invariant"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/validate"
)

// userHolder is a list attribute that may hold user ids.
type userHolder struct {
	kind entity.Kind
	path string
}

var userHolders = []userHolder{
	{entity.KindTask, "watchers"},
	{entity.KindTask, "assigned.assignees"},
	{entity.KindTaskComment, "mentions"},
	{entity.KindNotification, "recipients"},
}

// detachUser removes a deleted user's id from every live record of the
// tenant that lists it. Tombstoned holders keep their lists.
func (w *walker) detachUser(ctx context.Context, u *entity.User) error {
	seen := make(map[entity.Ref]bool)
	for _, h := range userHolders {
		holders, err := w.records.Find(ctx, w.tx, store.Filter{
			Kind:         h.kind,
			Organization: u.Organization,
			Contains:     []store.Condition{store.Eq(h.path, u.ID)},
		})
		if err != nil {
			return fmt.Errorf("find %s holding %s: %w", h.kind, u.ID, err)
		}
		for _, rec := range holders {
			ref := entity.RefOf(rec)
			if seen[ref] {
				continue
			}
			seen[ref] = true

			d, ok := rec.(entity.UserDetacher)
			if !ok {
				continue
			}
			n := d.DetachUser(u.ID)
			if n == 0 {
				continue
			}
			if err := w.records.Save(ctx, w.tx, rec); err != nil {
				return fmt.Errorf("detach %s from %s: %w", u.ID, ref, err)
			}
			w.res.DetachedReferences += n

			if t, ok := rec.(*entity.Task); ok && t.Assigned != nil && len(t.Assigned.Assignees) == 0 {
				w.warn(validate.NewIssue(validate.CodeAssigneesExhausted, ref,
					"%s has no assignees left", ref).WithField("assignees").WithMeta("user", u.ID))
			}
		}
	}
	w.logger.Debug("user detached", "user", u.ID, "references", w.res.DetachedReferences)
	return nil
}

// dropDeadReferences removes ids that no longer resolve from a record just
// restored. References below their live minimum are left for the validator
// to report.
func (w *walker) dropDeadReferences(ctx context.Context, rec entity.Record) error {
	d, ok := rec.(entity.ReferenceDropper)
	if !ok {
		return nil
	}
	checks, err := invariant.CheckReferences(ctx, w.records, w.tx, rec)
	if err != nil {
		return fmt.Errorf("resolve references of %s: %w", entity.RefOf(rec), err)
	}
	dropped := 0
	for _, c := range checks {
		dead := c.Dead()
		if len(dead) == 0 || c.BelowMinimum() {
			continue
		}
		dropped += d.DropReferences(c.Field, dead)
	}
	if dropped == 0 {
		return nil
	}
	if err := w.records.Save(ctx, w.tx, rec); err != nil {
		return fmt.Errorf("drop dead references of %s: %w", entity.RefOf(rec), err)
	}
	w.res.DroppedReferences += dropped
	return nil
}
