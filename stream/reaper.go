// Package stream provides the DynamoDB Streams handler that finishes the
// physical purge of expired tombstones.
//
// DynamoDB TTL removes each tombstoned record on its own schedule. When an
// owner is removed, its tombstoned children may still carry a later (or no)
// TTL, so the handler purges them right away. Their own REMOVE events then
// walk the next level down.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/metrics"
	"github.com/jacentio/canopy/store"
)

const ttlPrincipal = "dynamodb.amazonaws.com"

// Handler processes DynamoDB stream events for tombstone purges.
type Handler struct {
	backend   store.Backend
	registry  *entity.Registry
	logger    *slog.Logger
	metrics   *metrics.Recorder
	batchSize int
}

// NewHandler creates a new stream handler. A nil registry selects
// entity.DefaultRegistry.
func NewHandler(backend store.Backend, registry *entity.Registry, logger *slog.Logger) *Handler {
	if registry == nil {
		registry = entity.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		backend:   backend,
		registry:  registry,
		logger:    logger,
		batchSize: store.DefaultPurgeBatch,
	}
}

// SetMetrics attaches a recorder.
func (h *Handler) SetMetrics(m *metrics.Recorder) {
	h.metrics = m
}

// SetBatchSize sets the number of records purged per transaction.
func (h *Handler) SetBatchSize(n int) {
	h.batchSize = n
}

// HandleRemove processes DynamoDB stream events and purges the tombstoned
// children of removed tombstones. It is designed to be used as an AWS
// Lambda handler.
func (h *Handler) HandleRemove(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "REMOVE" {
		return nil
	}

	ref, err := RecordRef(record)
	if err != nil {
		h.logger.Warn("skipping record", "eventID", record.EventID, "error", err)
		return nil
	}

	old := record.Change.OldImage
	if len(old) > 0 && !getBoolAttr(old, store.AttrIsDeleted) {
		// Live records are never purged by the reaper. Whoever removed this
		// one left its unique constraints behind.
		h.logger.Warn("live record removed outside the reaper",
			"entity", ref.String(),
			"uniqueKeys", len(getStringListAttr(old, store.AttrUniqueKeys)),
		)
		return nil
	}

	if !h.registry.HasChildren(ref.Kind) {
		return nil
	}

	h.logger.Info("purging tombstoned children",
		"entity", ref.String(),
		"ttl", getNumberAttr(old, store.AttrTTL),
		"expired", isTTLExpiry(record),
	)

	result, err := store.PurgeOrphans(ctx, h.backend, h.registry, ref, h.batchSize)
	h.recordPurged(result.Purged)
	if err != nil {
		return fmt.Errorf("purge children of %s: %w", ref, err)
	}

	if len(result.LiveOrphans) > 0 {
		h.logger.Warn("live children outlived their owner",
			"entity", ref.String(),
			"liveOrphans", len(result.LiveOrphans),
		)
	}

	h.logger.Info("purge completed",
		"entity", ref.String(),
		"purged", len(result.Purged),
	)
	return nil
}

func (h *Handler) recordPurged(refs []entity.Ref) {
	counts := make(map[entity.Kind]int)
	for _, r := range refs {
		counts[r.Kind]++
	}
	for kind, n := range counts {
		h.metrics.Purged(string(kind), n)
	}
}

// isTTLExpiry reports whether DynamoDB TTL, rather than a client, removed the item.
func isTTLExpiry(record events.DynamoDBEventRecord) bool {
	id := record.UserIdentity
	return id != nil && id.Type == "Service" && id.PrincipalID == ttlPrincipal
}
