package validate

import (
	"context"
	"errors"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/invariant"
	"github.com/jacentio/canopy/store"
)

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func superAdmins(org string) store.Filter {
	return store.Filter{
		Kind:         entity.KindUser,
		Organization: org,
		Equals:       []store.Condition{store.Eq("role", string(entity.RoleSuperAdmin))},
	}
}

func (v *Validator) deleteOrganization(ctx context.Context, tx store.Tx, o *entity.Organization, report *Report) error {
	ref := entity.RefOf(o)
	if o.IsPlatformOrg {
		report.fail(NewIssue(CodePlatformOrganization, ref, "the platform organization cannot be deleted"))
	}

	depts, err := v.countLive(ctx, tx, store.Filter{Kind: entity.KindDepartment, ParentRef: ref.String()})
	if err != nil {
		return err
	}
	users, err := v.countLive(ctx, tx, store.Filter{Kind: entity.KindUser, Organization: o.ID})
	if err != nil {
		return err
	}
	if depts > v.thresholds.Departments {
		report.warn(NewIssue(CodeLargeOperation, ref, "deleting %d departments", depts).
			WithMeta("departments", depts))
	}
	if users > v.thresholds.Users {
		report.warn(NewIssue(CodeLargeOperation, ref, "deleting %d users", users).
			WithMeta("users", users))
	}
	if depts+users > 0 {
		report.warn(NewIssue(CodeCascadeImpact, ref, "%d departments and %d users will be deleted", depts, users).
			WithMeta("departments", depts).WithMeta("users", users))
	}
	return nil
}

func (v *Validator) deleteDepartment(ctx context.Context, tx store.Tx, d *entity.Department, report *Report) error {
	ref := entity.RefOf(d)

	orgLive, err := v.isLive(ctx, tx, d.Owner())
	if err != nil {
		return err
	}
	if orgLive {
		orgAdmins, err := v.countLive(ctx, tx, superAdmins(d.Organization))
		if err != nil {
			return err
		}
		f := superAdmins(d.Organization)
		f.Department = d.ID
		deptAdmins, err := v.countLive(ctx, tx, f)
		if err != nil {
			return err
		}
		if deptAdmins > 0 && deptAdmins == orgAdmins {
			report.fail(NewIssue(CodeLastSuperAdmin, ref, "department holds every super admin of the organization").
				WithMeta("super_admins", deptAdmins))
		}
	}

	users, err := v.countLive(ctx, tx, store.Filter{Kind: entity.KindUser, ParentRef: ref.String()})
	if err != nil {
		return err
	}
	tasks, err := v.countLive(ctx, tx, store.Filter{Kind: entity.KindTask, ParentRef: ref.String()})
	if err != nil {
		return err
	}
	if users > v.thresholds.Users {
		report.warn(NewIssue(CodeLargeOperation, ref, "deleting %d users", users).WithMeta("users", users))
	}
	if users+tasks > 0 {
		report.warn(NewIssue(CodeCascadeImpact, ref, "%d users and %d tasks will be deleted", users, tasks).
			WithMeta("users", users).WithMeta("tasks", tasks))
	}
	return nil
}

func (v *Validator) deleteUser(ctx context.Context, tx store.Tx, u *entity.User, report *Report) error {
	ref := entity.RefOf(u)

	if u.Role == entity.RoleSuperAdmin {
		orgLive, err := v.isLive(ctx, tx, entity.NewRef(entity.KindOrganization, u.Organization))
		if err != nil {
			return err
		}
		if orgLive {
			f := superAdmins(u.Organization)
			f.ExcludeIDs = []string{u.ID}
			others, err := v.countLive(ctx, tx, f)
			if err != nil {
				return err
			}
			if others == 0 {
				report.fail(NewIssue(CodeLastSuperAdmin, ref, "%s is the last super admin of the organization", u.FullName()).
					WithField("role"))
			}
		}
	}

	if u.IsHOD {
		deptLive, err := v.isLive(ctx, tx, u.Owner())
		if err != nil {
			return err
		}
		if deptLive {
			report.fail(NewIssue(CodeLastHOD, ref, "%s heads a live department; appoint another head first", u.FullName()).
				WithField("is_hod"))
		}
	}
	return nil
}

func (v *Validator) deleteTask(ctx context.Context, tx store.Tx, t *entity.Task, report *Report) error {
	ref := entity.RefOf(t)
	activities, err := v.countLive(ctx, tx, store.Filter{Kind: entity.KindTaskActivity, ParentRef: ref.String()})
	if err != nil {
		return err
	}
	comments, err := v.countLive(ctx, tx, store.Filter{
		Kind:         entity.KindTaskComment,
		Organization: t.Organization,
		Equals:       []store.Condition{store.Eq("task", t.ID)},
	})
	if err != nil {
		return err
	}
	if activities > v.thresholds.ActivitiesPerTask {
		report.warn(NewIssue(CodeLargeOperation, ref, "deleting %d activities", activities).
			WithMeta("activities", activities))
	}
	if comments > v.thresholds.CommentsPerTask {
		report.warn(NewIssue(CodeLargeOperation, ref, "deleting %d comments", comments).
			WithMeta("comments", comments))
	}
	if !t.Type.HasActivities() && activities > 0 {
		report.warn(NewIssue(CodeRoutineTaskHasActivities, ref, "routine task carries %d activities", activities))
	}
	return nil
}

func (v *Validator) deleteVendor(ctx context.Context, tx store.Tx, vd *entity.Vendor, report *Report) error {
	ref := entity.RefOf(vd)
	n, err := v.countLive(ctx, tx, store.Filter{
		Kind:         entity.KindTask,
		Organization: vd.Organization,
		Equals:       []store.Condition{store.Eq("project.vendor", vd.ID)},
	})
	if err != nil {
		return err
	}
	if n > 0 {
		report.fail(NewIssue(CodeVendorInUse, ref, "vendor is used by %d live project tasks", n).
			WithMeta("tasks", n))
	}
	return nil
}

func (v *Validator) deleteMaterial(ctx context.Context, tx store.Tx, m *entity.Material, report *Report) error {
	ref := entity.RefOf(m)
	tasks, err := v.countLive(ctx, tx, store.Filter{
		Kind:         entity.KindTask,
		Organization: m.Organization,
		Contains:     []store.Condition{store.Eq("routine.material_ids", m.ID)},
	})
	if err != nil {
		return err
	}
	activities, err := v.countLive(ctx, tx, store.Filter{
		Kind:         entity.KindTaskActivity,
		Organization: m.Organization,
		Contains:     []store.Condition{store.Eq("material_ids", m.ID)},
	})
	if err != nil {
		return err
	}
	if tasks+activities > 0 {
		report.warn(NewIssue(CodeMaterialInUse, ref, "material is used by %d tasks and %d activities", tasks, activities).
			WithMeta("tasks", tasks).WithMeta("activities", activities))
	}
	return nil
}

func (v *Validator) restoreTask(ctx context.Context, tx store.Tx, t *entity.Task, report *Report) error {
	ref := entity.RefOf(t)
	if err := invariant.TaskShape(t); err != nil {
		report.fail(NewIssue(CodeInvalidTaskShape, ref, "%v", err).WithField("type"))
	}
	if t.Type.HasActivities() {
		return nil
	}
	n, err := v.countLive(ctx, tx, store.Filter{Kind: entity.KindTaskActivity, ParentRef: ref.String()})
	if err != nil {
		return err
	}
	if n > 0 {
		report.warn(NewIssue(CodeRoutineTaskHasActivities, ref, "routine task carries %d activities", n))
	}
	return nil
}

func (v *Validator) restoreActivity(ctx context.Context, tx store.Tx, a *entity.TaskActivity, report *Report) error {
	task, err := v.records.Tasks.Lookup(ctx, tx, a.Task, store.IncludeTombstoned)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !task.Type.HasActivities() {
		report.fail(NewIssue(CodeRoutineTaskActivity, entity.RefOf(a), "routine tasks cannot have activities").
			WithField("task"))
	}
	return nil
}

func (v *Validator) restoreComment(ctx context.Context, tx store.Tx, c *entity.TaskComment, report *Report) error {
	parent, err := v.records.Load(ctx, tx, c.Owner())
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	err = invariant.CheckCommentDepth(c, parent)
	switch {
	case err == nil:
	case errors.Is(err, invariant.ErrCommentDepthExceeded):
		report.fail(NewIssue(CodeCommentDepthExceeded, entity.RefOf(c), "%v", err).WithField("depth"))
	default:
		report.fail(NewIssue(CodeInvalidCommentDepth, entity.RefOf(c), "%v", err).WithField("depth"))
	}
	return nil
}
