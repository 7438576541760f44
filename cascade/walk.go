package cascade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/metrics"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/validate"
)

// walker carries the state of one cascade call.
type walker struct {
	records   *store.Collections
	registry  *entity.Registry
	validator *validate.Validator
	metrics   *metrics.Recorder
	logger    *slog.Logger

	tx      store.Tx
	op      operation
	actorID string
	root    entity.Ref
	opts    Options
	res     *Result
}

// visit processes one node and its subtree. It reports whether the node
// itself reached the target state. Branch refusals are recorded in the
// result; only store faults are returned.
func (w *walker) visit(ctx context.Context, rec entity.Record, depth int) (bool, error) {
	ref := entity.RefOf(rec)
	if depth >= w.opts.MaxDepth {
		w.fail(validate.NewIssue(validate.CodeMaxDepthExceeded, ref,
			"depth %d reached the limit of %d", depth, w.opts.MaxDepth).WithMeta("depth", depth))
		return false, nil
	}
	if w.op == opDelete {
		return w.delete(ctx, rec, depth)
	}
	return w.restore(ctx, rec, depth)
}

func (w *walker) delete(ctx context.Context, rec entity.Record, depth int) (bool, error) {
	ref := entity.RefOf(rec)

	// Already tombstoned records are not re-validated or re-stamped, but their
	// subtree is still walked so live stragglers are caught.
	if !rec.TombstoneState().IsDeleted {
		if !w.opts.SkipValidation {
			report, err := w.validator.ValidateDeletion(ctx, w.tx, rec)
			if err != nil {
				return false, fmt.Errorf("validate deletion of %s: %w", ref, err)
			}
			w.collect(report)
			if !report.Valid && !w.opts.Force {
				w.logger.Warn("delete blocked", "entity", ref.String(), "errors", len(report.Errors))
				return false, nil
			}
		}

		_, changed, err := w.records.SoftDelete(ctx, w.tx, ref, w.actorID)
		if err != nil {
			return false, fmt.Errorf("soft delete %s: %w", ref, err)
		}
		if changed {
			w.res.affected(ref)
			if u, ok := rec.(*entity.User); ok {
				if err := w.detachUser(ctx, u); err != nil {
					return false, err
				}
			}
		}
	}

	for _, rel := range w.registry.ChildrenOf(ref.Kind) {
		children, err := w.records.Children(ctx, w.tx, ref, rel.Child, store.IncludeTombstoned)
		if err != nil {
			return false, fmt.Errorf("list %s of %s: %w", rel.Child, ref, err)
		}
		for _, child := range children {
			if _, err := w.visit(ctx, child, depth+1); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func (w *walker) restore(ctx context.Context, rec entity.Record, depth int) (bool, error) {
	ref := entity.RefOf(rec)

	if !rec.TombstoneState().IsDeleted {
		if ref == w.root {
			w.warn(validate.NewIssue(validate.CodeNotDeleted, ref, "%s is not deleted", ref))
		}
		return true, nil
	}

	if !w.opts.SkipValidation {
		report, err := w.validator.ValidateRestoration(ctx, w.tx, rec)
		if err != nil {
			return false, fmt.Errorf("validate restoration of %s: %w", ref, err)
		}
		w.collect(report)
		if !report.Valid {
			w.logger.Warn("restore blocked", "entity", ref.String(), "errors", len(report.Errors))
			return false, nil
		}
	}

	restored, changed, err := w.records.Restore(ctx, w.tx, ref)
	if err != nil {
		return false, fmt.Errorf("restore %s: %w", ref, err)
	}
	if changed {
		w.res.affected(ref)
		if err := w.dropDeadReferences(ctx, restored); err != nil {
			return false, err
		}
	}

	for _, rel := range w.registry.RestoreChildrenOf(ref.Kind) {
		children, err := w.records.Children(ctx, w.tx, ref, rel.Child, store.OnlyTombstoned)
		if err != nil {
			return false, fmt.Errorf("list %s of %s: %w", rel.Child, ref, err)
		}
		for _, child := range children {
			if _, err := w.visit(ctx, child, depth+1); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func (w *walker) collect(report validate.Report) {
	for _, i := range report.Errors {
		w.fail(i)
	}
	for _, i := range report.Warnings {
		w.warn(i)
	}
}

func (w *walker) fail(i validate.Issue) {
	w.res.Errors = append(w.res.Errors, i)
	w.metrics.Issue("error", string(i.Code))
}

func (w *walker) warn(i validate.Issue) {
	w.res.Warnings = append(w.res.Warnings, i)
	w.metrics.Issue("warning", string(i.Code))
}
