// Package cascade propagates soft deletion and restoration through the
// ownership tree inside a single transaction.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/metrics"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/validate"
)

type operation string

const (
	opDelete  operation = "delete"
	opRestore operation = "restore"
)

// Engine runs cascade deletes and restores.
type Engine struct {
	backend   store.Backend
	records   *store.Collections
	validator *validate.Validator
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// New creates an engine. A nil validator uses default thresholds and a nil
// logger uses slog.Default().
func New(backend store.Backend, records *store.Collections, validator *validate.Validator, logger *slog.Logger) *Engine {
	if validator == nil {
		validator = validate.New(records, validate.Thresholds{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		backend:   backend,
		records:   records,
		validator: validator,
		logger:    logger,
	}
}

// SetMetrics attaches a recorder.
func (e *Engine) SetMetrics(m *metrics.Recorder) {
	e.metrics = m
}

// CascadeDelete tombstones root and every descendant.
func (e *Engine) CascadeDelete(ctx context.Context, root entity.Ref, actorID string, opts Options) (Result, error) {
	return e.run(ctx, opDelete, root, actorID, opts, true)
}

// CascadeRestore revives root and every tombstoned descendant.
func (e *Engine) CascadeRestore(ctx context.Context, root entity.Ref, opts Options) (Result, error) {
	return e.run(ctx, opRestore, root, "", opts, true)
}

// PreviewDelete reports what CascadeDelete would do without persisting it.
func (e *Engine) PreviewDelete(ctx context.Context, root entity.Ref, actorID string, opts Options) (Result, error) {
	return e.run(ctx, opDelete, root, actorID, opts, false)
}

// PreviewRestore reports what CascadeRestore would do without persisting it.
func (e *Engine) PreviewRestore(ctx context.Context, root entity.Ref, opts Options) (Result, error) {
	return e.run(ctx, opRestore, root, "", opts, false)
}

func (e *Engine) run(ctx context.Context, op operation, root entity.Ref, actorID string, opts Options, commit bool) (Result, error) {
	start := time.Now()
	opts = opts.withDefaults()
	res := Result{OperationID: uuid.NewString()}
	logger := e.logger.With(
		"operation", string(op),
		"root", root.String(),
		"operationID", res.OperationID,
	)

	logger.Info("cascade started",
		"actor", actorID,
		"force", opts.Force,
		"skipValidation", opts.SkipValidation,
		"preview", !commit,
	)

	tx, err := e.backend.Begin(ctx)
	if err != nil {
		return e.abort(logger, op, root, res, start, fmt.Errorf("begin: %w", err))
	}

	rec, err := e.records.Load(ctx, tx, root)
	if errors.Is(err, store.ErrNotFound) {
		_ = tx.Rollback()
		res.Errors = append(res.Errors, validate.NewIssue(validate.CodeNotFound, root, "%s does not exist", root))
		e.observe(op, root, res, commit, start)
		logger.Warn("cascade root not found")
		return res, nil
	}
	if err != nil {
		_ = tx.Rollback()
		return e.abort(logger, op, root, res, start, err)
	}

	w := &walker{
		records:   e.records,
		registry:  e.records.Registry(),
		validator: e.validator,
		metrics:   e.metrics,
		logger:    logger,
		tx:        tx,
		op:        op,
		actorID:   actorID,
		root:      root,
		opts:      opts,
		res:       &res,
	}
	ok, err := w.visit(ctx, rec, opts.Depth)
	if err != nil {
		_ = tx.Rollback()
		return e.abort(logger, op, root, res, start, err)
	}
	res.Success = ok

	if !commit {
		_ = tx.Rollback()
	} else if err := tx.Commit(ctx); err != nil {
		return e.abort(logger, op, root, res, start, fmt.Errorf("commit: %w", err))
	}

	e.observe(op, root, res, commit, start)
	logger.Info("cascade completed",
		"success", res.Success,
		"affected", res.AffectedCount,
		"detached", res.DetachedReferences,
		"dropped", res.DroppedReferences,
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
		"took", time.Since(start),
	)
	return res, nil
}

// abort discards the walk's counts: nothing was persisted.
func (e *Engine) abort(logger *slog.Logger, op operation, root entity.Ref, res Result, start time.Time, err error) (Result, error) {
	logger.Error("cascade aborted", "error", err)
	outcome := metrics.OutcomeFailed
	if errors.Is(err, store.ErrConcurrentModification) {
		outcome = metrics.OutcomeConflict
	}
	e.metrics.Operation(string(op), string(root.Kind), outcome, 0, time.Since(start))
	return Result{OperationID: res.OperationID, Errors: res.Errors, Warnings: res.Warnings}, err
}

func (e *Engine) observe(op operation, root entity.Ref, res Result, commit bool, start time.Time) {
	outcome := metrics.OutcomeSuccess
	switch {
	case !commit:
		outcome = metrics.OutcomePreview
	case !res.Success:
		outcome = metrics.OutcomeBlocked
	}
	e.metrics.Operation(string(op), string(root.Kind), outcome, res.AffectedCount, time.Since(start))
	if commit {
		e.metrics.Detached(res.DetachedReferences)
	}
}
