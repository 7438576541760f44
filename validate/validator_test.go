package validate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/internal/fixture"
	"github.com/jacentio/canopy/validate"
)

func checkDelete(t *testing.T, w *fixture.World, v *validate.Validator, rec entity.Record) validate.Report {
	t.Helper()
	tx := w.Tx(t)
	defer tx.Rollback()
	report, err := v.ValidateDeletion(context.Background(), tx, w.Load(t, rec))
	require.NoError(t, err)
	return report
}

func checkRestore(t *testing.T, w *fixture.World, v *validate.Validator, rec entity.Record) validate.Report {
	t.Helper()
	tx := w.Tx(t)
	defer tx.Rollback()
	report, err := v.ValidateRestoration(context.Background(), tx, w.Load(t, rec))
	require.NoError(t, err)
	return report
}

func codes(issues []validate.Issue) []validate.Code {
	out := make([]validate.Code, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func newValidator(w *fixture.World) *validate.Validator {
	return validate.New(w.Records, validate.Thresholds{})
}

func TestValidateDeletion_PlatformOrganization(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	org.IsPlatformOrg = true
	w.Seed(t, org)

	report := checkDelete(t, w, newValidator(w), org)
	assert.False(t, report.Valid)
	assert.Equal(t, []validate.Code{validate.CodePlatformOrganization}, codes(report.Errors))
}

func TestValidateDeletion_LastSuperAdmin(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	admin := fixture.User("sa1", dept, entity.RoleSuperAdmin)
	w.Seed(t, org, dept, admin)
	v := newValidator(w)

	report := checkDelete(t, w, v, admin)
	assert.False(t, report.Valid)
	assert.Contains(t, codes(report.Errors), validate.CodeLastSuperAdmin)

	w.Seed(t, fixture.User("sa2", dept, entity.RoleSuperAdmin))
	report = checkDelete(t, w, v, admin)
	assert.True(t, report.Valid, "errors: %v", report.Errors)
}

func TestValidateDeletion_LastSuperAdminOfDeletedOrganization(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	admin := fixture.User("sa1", dept, entity.RoleSuperAdmin)
	w.Seed(t, org, dept, admin)
	w.Tombstone(t, org)

	report := checkDelete(t, w, newValidator(w), admin)
	assert.True(t, report.Valid, "errors: %v", report.Errors)
}

func TestValidateDeletion_DepartmentHoldingLastSuperAdmin(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	ops := fixture.Dept("d1", org)
	hr := fixture.Dept("d2", org)
	w.Seed(t, org, ops, hr, fixture.User("sa1", ops, entity.RoleSuperAdmin))
	v := newValidator(w)

	report := checkDelete(t, w, v, ops)
	assert.Contains(t, codes(report.Errors), validate.CodeLastSuperAdmin)

	report = checkDelete(t, w, v, hr)
	assert.True(t, report.Valid, "errors: %v", report.Errors)
}

func TestValidateDeletion_HeadOfDepartment(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	head := fixture.HOD("u1", dept)
	w.Seed(t, org, dept, head)
	v := newValidator(w)

	report := checkDelete(t, w, v, head)
	assert.Equal(t, []validate.Code{validate.CodeLastHOD}, codes(report.Errors))

	w.Tombstone(t, dept)
	report = checkDelete(t, w, v, head)
	assert.True(t, report.Valid, "errors: %v", report.Errors)
}

func TestValidateDeletion_VendorAndMaterialUsage(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	u := fixture.User("u1", dept, entity.RoleUser)
	vendor := fixture.Vendor("v1", org)
	idle := fixture.Vendor("v2", org)
	mat := fixture.Material("m1", org, nil)
	w.Seed(t, org, dept, u, vendor, idle, mat,
		fixture.ProjectTask("t1", dept, u, vendor),
		fixture.RoutineTask("t2", dept, u, mat),
	)
	v := newValidator(w)

	report := checkDelete(t, w, v, vendor)
	assert.False(t, report.Valid)
	assert.Equal(t, []validate.Code{validate.CodeVendorInUse}, codes(report.Errors))

	assert.True(t, checkDelete(t, w, v, idle).Valid)

	report = checkDelete(t, w, v, mat)
	assert.True(t, report.Valid, "material usage only warns")
	assert.Contains(t, codes(report.Warnings), validate.CodeMaterialInUse)
}

func TestValidateDeletion_MagnitudeWarnings(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	u := fixture.User("u1", dept, entity.RoleUser)
	task := fixture.AssignedTask("t1", dept, u, u)
	w.Seed(t, org, dept, u, task,
		fixture.Activity("a1", task, u),
		fixture.Activity("a2", task, u),
		fixture.Activity("a3", task, u),
	)
	v := validate.New(w.Records, validate.Thresholds{ActivitiesPerTask: 2})

	report := checkDelete(t, w, v, task)
	assert.True(t, report.Valid)
	assert.Contains(t, codes(report.Warnings), validate.CodeLargeOperation)

	report = checkDelete(t, w, v, dept)
	assert.True(t, report.Valid)
	assert.Contains(t, codes(report.Warnings), validate.CodeCascadeImpact)
}

func TestValidateDeletion_ScopeMismatchIsInformational(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	d1 := fixture.Dept("d1", org)
	d2 := fixture.Dept("d2", org)
	local := fixture.User("u1", d1, entity.RoleUser)
	foreign := fixture.User("u2", d2, entity.RoleUser)
	task := fixture.AssignedTask("t1", d1, local, local, foreign)
	w.Seed(t, org, d1, d2, local, foreign, task)

	report := checkDelete(t, w, newValidator(w), task)
	assert.True(t, report.Valid)
	assert.NotContains(t, codes(report.Warnings), validate.CodeDepartmentMismatch)
	require.Equal(t, []validate.Code{validate.CodeDepartmentMismatch}, codes(report.Errors))
	assert.Equal(t, false, report.Errors[0].Meta["blocking"])
}

func TestValidateRestoration_AncestorGate(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	u := fixture.User("u1", dept, entity.RoleUser)
	w.Seed(t, org, dept, u)
	w.Tombstone(t, u, dept)
	v := newValidator(w)

	report := checkRestore(t, w, v, u)
	assert.False(t, report.Valid)
	assert.Equal(t, []validate.Code{validate.CodeDepartmentDeleted}, codes(report.Errors))

	w.Tombstone(t, org)
	report = checkRestore(t, w, v, u)
	assert.ElementsMatch(t,
		[]validate.Code{validate.CodeDepartmentDeleted, validate.CodeOrganizationDeleted},
		codes(report.Errors))
}

func TestValidateRestoration_MissingParent(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	u := fixture.User("u1", dept, entity.RoleUser)
	task := fixture.AssignedTask("t1", dept, u, u)
	ghost := fixture.Comment("c0", task, u)
	reply := fixture.Comment("c1", ghost, u)
	w.Seed(t, org, dept, u, task, reply)
	w.Tombstone(t, reply)

	report := checkRestore(t, w, newValidator(w), reply)
	assert.Contains(t, codes(report.Errors), validate.CodeParentDeleted)
}

func TestValidateRestoration_References(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	u1 := fixture.User("u1", dept, entity.RoleUser)
	u2 := fixture.User("u2", dept, entity.RoleUser)
	vendor := fixture.Vendor("v1", org)
	pair := fixture.AssignedTask("t1", dept, u1, u1, u2)
	solo := fixture.AssignedTask("t2", dept, u1, u2)
	project := fixture.ProjectTask("t3", dept, u1, vendor)
	w.Seed(t, org, dept, u1, u2, vendor, pair, solo, project)
	w.Tombstone(t, pair, solo, project, u2, vendor)
	v := newValidator(w)

	tests := []struct {
		name     string
		rec      entity.Record
		valid    bool
		errors   []validate.Code
		warnings []validate.Code
	}{
		{"one assignee left", pair, true, nil, []validate.Code{validate.CodeReferenceDeleted}},
		{"no assignee left", solo, false, []validate.Code{validate.CodeNoLiveAssignees}, nil},
		{"vendor deleted", project, false, []validate.Code{validate.CodeVendorDeleted}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := checkRestore(t, w, v, tt.rec)
			assert.Equal(t, tt.valid, report.Valid)
			for _, c := range tt.errors {
				assert.Contains(t, codes(report.Errors), c)
			}
			for _, c := range tt.warnings {
				assert.Contains(t, codes(report.Warnings), c)
			}
		})
	}
}

func TestValidateRestoration_DepartmentMismatchBlocks(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	d1 := fixture.Dept("d1", org)
	d2 := fixture.Dept("d2", org)
	local := fixture.User("u1", d1, entity.RoleUser)
	foreign := fixture.User("u2", d2, entity.RoleUser)
	task := fixture.AssignedTask("t1", d1, local, local, foreign)
	w.Seed(t, org, d1, d2, local, foreign, task)
	w.Tombstone(t, task)

	report := checkRestore(t, w, newValidator(w), task)
	assert.False(t, report.Valid)
	assert.Contains(t, codes(report.Errors), validate.CodeDepartmentMismatch)
}

func TestValidateRestoration_Uniqueness(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	old := fixture.HOD("u1", dept)
	w.Seed(t, org, dept, old)
	w.Tombstone(t, old)

	taker := fixture.HOD("u2", dept)
	taker.Email = old.Email
	w.Seed(t, taker)

	report := checkRestore(t, w, newValidator(w), old)
	assert.False(t, report.Valid)
	assert.ElementsMatch(t,
		[]validate.Code{validate.CodeDuplicateEmail, validate.CodeDuplicateHOD},
		codes(report.Errors))
}

func TestValidateRestoration_TTLWindow(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	u := fixture.User("u1", dept, entity.RoleUser)
	n := fixture.Notification("n1", org, nil, u)
	w.Seed(t, org, dept, u, n)
	w.Tombstone(t, n)
	v := newValidator(w)

	assert.False(t, checkRestore(t, w, v, n).HasCode(validate.CodeTTLExpiringSoon))

	w.Clock.Advance(25 * 24 * time.Hour)
	report := checkRestore(t, w, v, n)
	assert.True(t, report.Valid)
	assert.True(t, report.HasCode(validate.CodeTTLExpiringSoon))
}

func TestValidateRestoration_LiveRecord(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	w.Seed(t, org)

	report := checkRestore(t, w, newValidator(w), org)
	assert.True(t, report.Valid)
	assert.Equal(t, []validate.Code{validate.CodeNotDeleted}, codes(report.Warnings))
}

func TestValidateRestoration_ActivityOnRoutineTask(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	u := fixture.User("u1", dept, entity.RoleUser)
	task := fixture.RoutineTask("t1", dept, u)
	act := fixture.Activity("a1", task, u)
	w.Seed(t, org, dept, u, task, act)
	w.Tombstone(t, act)

	report := checkRestore(t, w, newValidator(w), act)
	assert.Contains(t, codes(report.Errors), validate.CodeRoutineTaskActivity)
}

func TestValidateRestoration_CommentDepth(t *testing.T) {
	w := fixture.New()
	org := fixture.Org("o1")
	dept := fixture.Dept("d1", org)
	u := fixture.User("u1", dept, entity.RoleUser)
	task := fixture.AssignedTask("t1", dept, u, u)
	c1 := fixture.Comment("c1", task, u)
	c2 := fixture.Comment("c2", c1, u)
	c2.Depth = 3
	w.Seed(t, org, dept, u, task, c1, c2)
	w.Tombstone(t, c2)

	report := checkRestore(t, w, newValidator(w), c2)
	assert.Contains(t, codes(report.Errors), validate.CodeInvalidCommentDepth)
}
