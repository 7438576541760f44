// Package validate evaluates the preconditions of deleting or restoring a
// single record. Checks are read-only and their outcome is a Report value;
// only store faults are returned as errors.
package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/invariant"
	"github.com/jacentio/canopy/store"
)

// Thresholds are the fan-out limits above which a LARGE_OPERATION warning is
// raised, and the window in which a tombstone is reported as expiring.
type Thresholds struct {
	Departments       int
	Users             int
	ActivitiesPerTask int
	CommentsPerTask   int
	TTLWarning        time.Duration
}

// DefaultThresholds returns the standard limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Departments:       100,
		Users:             1000,
		ActivitiesPerTask: 10,
		CommentsPerTask:   50,
		TTLWarning:        7 * 24 * time.Hour,
	}
}

func (t *Thresholds) fill() {
	d := DefaultThresholds()
	if t.Departments <= 0 {
		t.Departments = d.Departments
	}
	if t.Users <= 0 {
		t.Users = d.Users
	}
	if t.ActivitiesPerTask <= 0 {
		t.ActivitiesPerTask = d.ActivitiesPerTask
	}
	if t.CommentsPerTask <= 0 {
		t.CommentsPerTask = d.CommentsPerTask
	}
	if t.TTLWarning <= 0 {
		t.TTLWarning = d.TTLWarning
	}
}

// maxOwnerHops bounds the ancestor walk.
const maxOwnerHops = 10

// Validator checks deletion and restoration preconditions.
type Validator struct {
	records    *store.Collections
	thresholds Thresholds
}

// New creates a validator. Zero threshold fields take their defaults.
func New(records *store.Collections, thresholds Thresholds) *Validator {
	thresholds.fill()
	return &Validator{records: records, thresholds: thresholds}
}

// Thresholds returns the effective limits.
func (v *Validator) Thresholds() Thresholds {
	return v.thresholds
}

// ValidateDeletion checks whether rec may be tombstoned.
func (v *Validator) ValidateDeletion(ctx context.Context, tx store.Tx, rec entity.Record) (Report, error) {
	report := newReport()
	if rec.TombstoneState().IsDeleted {
		return report, nil
	}

	checks, err := invariant.CheckReferences(ctx, v.records, tx, rec)
	if err != nil {
		return report, err
	}
	issues, err := v.scopeIssues(ctx, tx, rec, checks)
	if err != nil {
		return report, err
	}
	// Scope drift is an error on delete too, but it does not block.
	for _, i := range issues {
		report.inform(i)
	}

	switch r := rec.(type) {
	case *entity.Organization:
		err = v.deleteOrganization(ctx, tx, r, &report)
	case *entity.Department:
		err = v.deleteDepartment(ctx, tx, r, &report)
	case *entity.User:
		err = v.deleteUser(ctx, tx, r, &report)
	case *entity.Task:
		err = v.deleteTask(ctx, tx, r, &report)
	case *entity.Vendor:
		err = v.deleteVendor(ctx, tx, r, &report)
	case *entity.Material:
		err = v.deleteMaterial(ctx, tx, r, &report)
	}
	return report, err
}

// ValidateRestoration checks whether a tombstoned rec may be revived.
func (v *Validator) ValidateRestoration(ctx context.Context, tx store.Tx, rec entity.Record) (Report, error) {
	report := newReport()
	ref := entity.RefOf(rec)
	if !rec.TombstoneState().IsDeleted {
		report.warn(NewIssue(CodeNotDeleted, ref, "%s is not deleted", ref))
		return report, nil
	}

	if err := v.ancestorsLive(ctx, tx, rec, &report); err != nil {
		return report, err
	}

	checks, err := invariant.CheckReferences(ctx, v.records, tx, rec)
	if err != nil {
		return report, err
	}
	issues, err := v.scopeIssues(ctx, tx, rec, checks)
	if err != nil {
		return report, err
	}
	for _, i := range issues {
		report.fail(i)
	}
	referencesLive(ref, checks, &report)
	if err := v.uniqueFree(ctx, tx, rec, &report); err != nil {
		return report, err
	}
	v.ttlWindow(rec, &report)

	switch r := rec.(type) {
	case *entity.Task:
		err = v.restoreTask(ctx, tx, r, &report)
	case *entity.TaskActivity:
		err = v.restoreActivity(ctx, tx, r, &report)
	case *entity.TaskComment:
		err = v.restoreComment(ctx, tx, r, &report)
	}
	return report, err
}

// ancestorsLive walks the owner chain and fails on every tombstoned or
// missing ancestor.
func (v *Validator) ancestorsLive(ctx context.Context, tx store.Tx, rec entity.Record, report *Report) error {
	ref := entity.RefOf(rec)
	chain, missing, err := invariant.OwnerChain(ctx, v.records, tx, rec, maxOwnerHops)
	if err != nil {
		return err
	}
	for _, anc := range chain {
		if !anc.TombstoneState().IsDeleted {
			continue
		}
		ancRef := entity.RefOf(anc)
		report.fail(NewIssue(ancestorCode(anc.Kind()), ref, "%s is deleted", ancRef).
			WithMeta("ancestor", ancRef.String()))
	}
	if !missing.IsZero() {
		report.fail(NewIssue(CodeParentDeleted, ref, "%s does not exist", missing).
			WithMeta("ancestor", missing.String()))
	}
	return nil
}

func ancestorCode(k entity.Kind) Code {
	switch k {
	case entity.KindOrganization:
		return CodeOrganizationDeleted
	case entity.KindDepartment:
		return CodeDepartmentDeleted
	case entity.KindTask:
		return CodeTaskDeleted
	case entity.KindTaskActivity:
		return CodeActivityDeleted
	}
	return CodeParentDeleted
}

// scopeIssues compares rec's tenant and department with its owner and with
// every associative reference target.
func (v *Validator) scopeIssues(ctx context.Context, tx store.Tx, rec entity.Record, checks []invariant.ReferenceCheck) ([]Issue, error) {
	ref := entity.RefOf(rec)
	var issues []Issue

	if owner := rec.Owner(); !owner.IsZero() {
		parent, err := v.records.Load(ctx, tx, owner)
		switch {
		case err == nil:
			issues = append(issues, ownerScopeIssues(ref, rec, parent)...)
		case !isNotFound(err):
			return nil, err
		}
	}

	for _, c := range checks {
		for _, target := range c.OutOfTenant {
			issues = append(issues, NewIssue(CodeScopeMismatch, ref,
				"%s references %s in another organization", c.Field, entity.RefOf(target)).WithField(c.Field))
		}
		for _, target := range c.OutOfDepartment {
			issues = append(issues, NewIssue(CodeDepartmentMismatch, ref,
				"%s references %s in another department", c.Field, entity.RefOf(target)).WithField(c.Field))
		}
	}
	return issues, nil
}

func ownerScopeIssues(ref entity.Ref, rec, owner entity.Record) []Issue {
	ownerRef := entity.RefOf(owner)
	if !invariant.SameTenant(rec, owner) {
		return []Issue{NewIssue(CodeScopeMismatch, ref, "owner %s belongs to another organization", ownerRef).
			WithField("organization")}
	}
	if owner.Kind() == entity.KindOrganization {
		return nil
	}
	recDept, ownerDept := rec.Scope().Department, owner.Scope().Department
	if recDept != "" && ownerDept != "" && recDept != ownerDept {
		return []Issue{NewIssue(CodeDepartmentMismatch, ref, "owner %s belongs to another department", ownerRef).
			WithField("department")}
	}
	return nil
}

// referencesLive reports dead reference targets: errors when a mandatory
// minimum is no longer met, warnings when they are merely dropped.
func referencesLive(ref entity.Ref, checks []invariant.ReferenceCheck, report *Report) {
	for _, c := range checks {
		dead := c.Dead()
		if c.BelowMinimum() {
			report.fail(NewIssue(minimumCode(c.Field), ref,
				"%s needs %d live %s, has %d", c.Field, c.MinLive, c.Kind, c.LiveInScope()).
				WithField(c.Field).WithMeta("dead", dead))
			continue
		}
		if len(dead) > 0 {
			report.warn(NewIssue(CodeReferenceDeleted, ref,
				"%d %s in %s no longer exist and will be dropped", len(dead), c.Kind, c.Field).
				WithField(c.Field).WithMeta("dead", dead))
		}
	}
}

func minimumCode(field string) Code {
	switch field {
	case "vendor":
		return CodeVendorDeleted
	case "assignees":
		return CodeNoLiveAssignees
	case "recipients":
		return CodeNoLiveRecipients
	}
	return CodeReferenceDeleted
}

// uniqueFree fails when a live record has claimed one of rec's unique values
// while rec was tombstoned.
func (v *Validator) uniqueFree(ctx context.Context, tx store.Tx, rec entity.Record, report *Report) error {
	uf, ok := rec.(entity.UniqueFielder)
	if !ok {
		return nil
	}
	ref := entity.RefOf(rec)
	for _, f := range uf.UniqueFields() {
		holder, held, err := tx.UniqueOwner(ctx, store.UniqueKey(rec.Kind(), f))
		if err != nil {
			return fmt.Errorf("unique owner %s.%s: %w", rec.Kind(), f.Field, err)
		}
		if !held || holder == ref {
			continue
		}
		report.fail(NewIssue(duplicateCode(f.Field), ref, "%s %q is taken by %s", f.Field, f.Value, holder).
			WithField(f.Field).WithMeta("holder", holder.String()))
	}
	return nil
}

func duplicateCode(field string) Code {
	switch field {
	case "email":
		return CodeDuplicateEmail
	case "phone":
		return CodeDuplicatePhone
	case "hod":
		return CodeDuplicateHOD
	}
	return CodeDuplicateName
}

// ttlWindow warns when the tombstone is close to being purged.
func (v *Validator) ttlWindow(rec entity.Record, report *Report) {
	ts := rec.TombstoneState()
	if ts.DeletedAt == nil {
		return
	}
	exp := store.ExpiresAt(*ts.DeletedAt, v.records.Registry().Retention(rec.Kind()))
	if exp.IsZero() {
		return
	}
	left := exp.Sub(v.records.Now())
	if left >= v.thresholds.TTLWarning {
		return
	}
	ref := entity.RefOf(rec)
	report.warn(NewIssue(CodeTTLExpiringSoon, ref, "%s will be purged at %s", ref, exp.Format(time.RFC3339)).
		WithMeta("expires_at", exp))
}

func (v *Validator) countLive(ctx context.Context, tx store.Tx, f store.Filter) (int, error) {
	f.Visibility = store.Live
	n, err := v.records.Count(ctx, tx, f)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", f.Kind, err)
	}
	return n, nil
}

func (v *Validator) isLive(ctx context.Context, tx store.Tx, ref entity.Ref) (bool, error) {
	rec, err := v.records.Load(ctx, tx, ref)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !rec.TombstoneState().IsDeleted, nil
}
