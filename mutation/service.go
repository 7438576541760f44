// Package mutation creates and updates records while enforcing the tenant,
// ownership, reference and uniqueness rules at write time.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/invariant"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/validate"
)

// RejectedError is returned when a write breaks a rule. It carries every
// issue found, not just the first.
type RejectedError struct {
	Issues []validate.Issue
}

func (e *RejectedError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.String()
	}
	return "rejected: " + strings.Join(msgs, "; ")
}

// HasCode reports whether any issue carries code.
func (e *RejectedError) HasCode(code validate.Code) bool {
	for _, i := range e.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// Service writes records.
type Service struct {
	backend store.Backend
	records *store.Collections
	fields  *validator.Validate
	logger  *slog.Logger
	newID   func() string
}

// New creates a service. A nil logger uses slog.Default().
func New(backend store.Backend, records *store.Collections, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("dynamodbav"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Service{
		backend: backend,
		records: records,
		fields:  v,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Create stores a new live record. An empty ID is filled with a UUID.
func (s *Service) Create(ctx context.Context, rec entity.Record) (entity.Record, error) {
	if rec.TombstoneState().IsDeleted {
		return nil, &RejectedError{Issues: []validate.Issue{
			validate.NewIssue(validate.CodeInvalidField, entity.RefOf(rec), "new records cannot be tombstoned").WithField("is_deleted"),
		}}
	}
	if meta := rec.Metadata(); meta.ID == "" {
		meta.ID = s.newID()
	}
	prepare(rec)

	err := s.inTx(ctx, func(tx store.Tx) error {
		var issues []validate.Issue
		owner, ownerIssues, err := s.checkOwner(ctx, tx, rec)
		if err != nil {
			return err
		}
		issues = append(issues, ownerIssues...)
		if owner != nil {
			issues = append(issues, s.checkPlacement(rec, owner)...)
		}
		issues = append(issues, s.checkFields(rec)...)

		more, err := s.checkRules(ctx, tx, rec, nil)
		if err != nil {
			return err
		}
		issues = append(issues, more...)
		if len(issues) > 0 {
			return &RejectedError{Issues: issues}
		}
		return s.records.Insert(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("record created", "entity", entity.RefOf(rec).String())
	return rec, nil
}

// Update stores changes to a live record. rec.Version must be the version
// that was read. The owner and task type cannot change.
func (s *Service) Update(ctx context.Context, rec entity.Record) (entity.Record, error) {
	prepare(rec)
	ref := entity.RefOf(rec)

	err := s.inTx(ctx, func(tx store.Tx) error {
		cur, err := s.records.Lookup(ctx, tx, ref, store.Live)
		if err != nil {
			return err
		}

		var issues []validate.Issue
		if cur.Owner() != rec.Owner() {
			issues = append(issues, validate.NewIssue(validate.CodeInvalidParent, ref,
				"owner cannot change from %s to %s", cur.Owner(), rec.Owner()))
		}
		if cur.Scope() != rec.Scope() {
			issues = append(issues, validate.NewIssue(validate.CodeScopeMismatch, ref,
				"organization and department cannot change"))
		}
		if before, ok := cur.(*entity.Task); ok {
			if err := invariant.TaskTypeUnchanged(before, rec.(*entity.Task)); err != nil {
				issues = append(issues, validate.NewIssue(validate.CodeImmutableTaskType, ref, "%v", err).WithField("type"))
			}
		}
		if c, ok := rec.(*entity.TaskComment); ok {
			c.Depth = cur.(*entity.TaskComment).Depth
		}
		issues = append(issues, s.checkFields(rec)...)

		more, err := s.checkRules(ctx, tx, rec, cur)
		if err != nil {
			return err
		}
		issues = append(issues, more...)
		if len(issues) > 0 {
			return &RejectedError{Issues: issues}
		}
		return s.records.Save(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("record updated", "entity", ref.String(), "version", rec.Metadata().Version)
	return rec, nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.backend.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			s.logger.Warn("write rejected", "issues", len(rejected.Issues), "first", rejected.Issues[0].Code)
		}
		return err
	}
	return tx.Commit(ctx)
}

// prepare recomputes derived fields.
func prepare(rec entity.Record) {
	switch r := rec.(type) {
	case *entity.Task:
		r.SyncMaterialIDs()
	case *entity.TaskActivity:
		r.SyncMaterialIDs()
	}
}

// checkFields runs the struct tag rules.
func (s *Service) checkFields(rec entity.Record) []validate.Issue {
	err := s.fields.Struct(rec)
	if err == nil {
		return nil
	}
	ref := entity.RefOf(rec)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []validate.Issue{validate.NewIssue(validate.CodeInvalidField, ref, "%v", err)}
	}
	issues := make([]validate.Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, validate.NewIssue(validate.CodeInvalidField, ref,
			"%s failed %q", fe.Namespace(), fe.Tag()).WithField(fe.Field()).WithMeta("rule", fe.Tag()))
	}
	return issues
}

// checkOwner loads the owner and requires it to be live and allowed to own
// records of rec's kind.
func (s *Service) checkOwner(ctx context.Context, tx store.Tx, rec entity.Record) (entity.Record, []validate.Issue, error) {
	ref := entity.RefOf(rec)
	owner := rec.Owner()
	if owner.IsZero() {
		if rec.Kind() == entity.KindOrganization {
			return nil, nil, nil
		}
		return nil, []validate.Issue{validate.NewIssue(validate.CodeInvalidParent, ref, "%s needs an owner", ref.Kind)}, nil
	}
	if !s.records.Registry().CanOwn(owner.Kind, rec.Kind()) {
		return nil, []validate.Issue{validate.NewIssue(validate.CodeInvalidParent, ref,
			"%s cannot own %s", owner.Kind, rec.Kind())}, nil
	}

	parent, err := s.records.Load(ctx, tx, owner)
	if errors.Is(err, store.ErrNotFound) {
		return nil, []validate.Issue{validate.NewIssue(validate.CodeParentDeleted, ref, "%s does not exist", owner).
			WithMeta("parent", owner.String())}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if parent.TombstoneState().IsDeleted {
		return parent, []validate.Issue{validate.NewIssue(parentDeletedCode(owner.Kind), ref, "%s is deleted", owner).
			WithMeta("parent", owner.String())}, nil
	}
	return parent, nil, nil
}

func parentDeletedCode(k entity.Kind) validate.Code {
	switch k {
	case entity.KindOrganization:
		return validate.CodeOrganizationDeleted
	case entity.KindDepartment:
		return validate.CodeDepartmentDeleted
	case entity.KindTask:
		return validate.CodeTaskDeleted
	case entity.KindTaskActivity:
		return validate.CodeActivityDeleted
	}
	return validate.CodeParentDeleted
}

// checkPlacement verifies tenant and department against the owner and sets
// the comment depth.
func (s *Service) checkPlacement(rec, owner entity.Record) []validate.Issue {
	ref := entity.RefOf(rec)
	var issues []validate.Issue
	if !invariant.SameTenant(rec, owner) {
		issues = append(issues, validate.NewIssue(validate.CodeScopeMismatch, ref,
			"owner %s belongs to another organization", entity.RefOf(owner)).WithField("organization"))
	} else if owner.Kind() != entity.KindOrganization && !invariant.SameTenantAndDepartment(rec, owner) {
		issues = append(issues, validate.NewIssue(validate.CodeDepartmentMismatch, ref,
			"owner %s belongs to another department", entity.RefOf(owner)).WithField("department"))
	}

	switch r := rec.(type) {
	case *entity.TaskComment:
		depth, err := invariant.CommentDepth(owner)
		if errors.Is(err, invariant.ErrCommentDepthExceeded) {
			issues = append(issues, validate.NewIssue(validate.CodeCommentDepthExceeded, ref,
				"replies nest at most %d deep", entity.MaxCommentDepth).WithField("depth").WithMeta("depth", depth))
		} else if err != nil {
			issues = append(issues, validate.NewIssue(validate.CodeInvalidParent, ref, "%v", err))
		}
		r.Depth = depth
		if t := taskOf(owner); t != "" {
			r.Task = t
		}
	case *entity.TaskActivity:
		if t, ok := owner.(*entity.Task); ok && !t.Type.HasActivities() {
			issues = append(issues, validate.NewIssue(validate.CodeRoutineTaskActivity, ref,
				"routine tasks cannot have activities").WithField("task"))
		}
	}
	return issues
}

func taskOf(owner entity.Record) string {
	switch o := owner.(type) {
	case *entity.Task:
		return o.ID
	case *entity.TaskActivity:
		return o.Task
	case *entity.TaskComment:
		return o.Task
	}
	return ""
}

// checkRules verifies the task shape, reference liveness and scope, and
// uniqueness among live records. On update, dead ids already stored in an
// optional reference field are tolerated; adding one is not.
func (s *Service) checkRules(ctx context.Context, tx store.Tx, rec, before entity.Record) ([]validate.Issue, error) {
	ref := entity.RefOf(rec)
	var issues []validate.Issue

	if t, ok := rec.(*entity.Task); ok {
		if err := invariant.TaskShape(t); err != nil {
			issues = append(issues, validate.NewIssue(validate.CodeInvalidTaskShape, ref, "%v", err).WithField("type"))
		}
	}

	checks, err := invariant.CheckReferences(ctx, s.records, tx, rec)
	if err != nil {
		return nil, err
	}
	for _, c := range checks {
		for _, target := range c.OutOfTenant {
			issues = append(issues, validate.NewIssue(validate.CodeScopeMismatch, ref,
				"%s references %s in another organization", c.Field, entity.RefOf(target)).WithField(c.Field))
		}
		for _, target := range c.OutOfDepartment {
			issues = append(issues, validate.NewIssue(validate.CodeDepartmentMismatch, ref,
				"%s references %s in another department", c.Field, entity.RefOf(target)).WithField(c.Field))
		}
		dead := c.Dead()
		if before != nil && c.MinLive == 0 {
			dead = added(dead, storedIDs(before, c.Field))
		}
		if len(dead) > 0 {
			issues = append(issues, validate.NewIssue(validate.CodeReferenceDeleted, ref,
				"%s references missing or deleted %s", c.Field, c.Kind).WithField(c.Field).WithMeta("dead", dead))
		}
	}

	if uf, ok := rec.(entity.UniqueFielder); ok {
		for _, f := range uf.UniqueFields() {
			holder, held, err := tx.UniqueOwner(ctx, store.UniqueKey(rec.Kind(), f))
			if err != nil {
				return nil, err
			}
			if held && holder != ref {
				issues = append(issues, validate.NewIssue(duplicateCode(f.Field), ref,
					"%s %q is already taken", f.Field, f.Value).WithField(f.Field).WithMeta("holder", holder.String()))
			}
		}
	}
	return issues, nil
}

// storedIDs returns the ids rec holds in field.
func storedIDs(rec entity.Record, field string) map[string]bool {
	ids := make(map[string]bool)
	for _, r := range rec.References() {
		if r.Field != field {
			continue
		}
		for _, id := range r.IDs {
			ids[id] = true
		}
	}
	return ids
}

// added returns the ids not in stored.
func added(ids []string, stored map[string]bool) []string {
	var out []string
	for _, id := range ids {
		if !stored[id] {
			out = append(out, id)
		}
	}
	return out
}

func duplicateCode(field string) validate.Code {
	switch field {
	case "email":
		return validate.CodeDuplicateEmail
	case "phone":
		return validate.CodeDuplicatePhone
	case "hod":
		return validate.CodeDuplicateHOD
	}
	return validate.CodeDuplicateName
}
