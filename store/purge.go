package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacentio/canopy/entity"
)

// DefaultPurgeBatch is the number of records purged per transaction.
const DefaultPurgeBatch = 25

// PurgeResult reports what PurgeOrphans did.
type PurgeResult struct {
	// Purged are the tombstoned children physically removed.
	Purged []entity.Ref

	// LiveOrphans are live children left behind by their owner's purge.
	// They are never removed here.
	LiveOrphans []entity.Ref
}

// PurgeOrphans physically removes the tombstoned children of an owner that
// the TTL reaper has already purged. Each batch is committed in its own
// transaction, so a failure leaves earlier batches purged; callers rerun it.
func PurgeOrphans(ctx context.Context, backend Backend, registry *entity.Registry, parent entity.Ref, batchSize int) (PurgeResult, error) {
	var result PurgeResult
	if batchSize <= 0 || batchSize > maxTransactItems {
		batchSize = DefaultPurgeBatch
	}

	for _, rel := range registry.ChildrenOf(parent.Kind) {
		children, err := orphanChildren(ctx, backend, parent, rel.Child)
		if err != nil {
			return result, err
		}

		var tombstoned []entity.Ref
		for _, it := range children {
			if it.IsDeleted {
				tombstoned = append(tombstoned, it.Ref())
			} else {
				result.LiveOrphans = append(result.LiveOrphans, it.Ref())
			}
		}

		for start := 0; start < len(tombstoned); start += batchSize {
			end := start + batchSize
			if end > len(tombstoned) {
				end = len(tombstoned)
			}
			purged, err := purgeBatch(ctx, backend, tombstoned[start:end])
			result.Purged = append(result.Purged, purged...)
			if err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

func orphanChildren(ctx context.Context, backend Backend, parent entity.Ref, kind entity.Kind) ([]*Item, error) {
	tx, err := backend.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	items, err := tx.Query(ctx, Filter{Kind: kind, ParentRef: parent.String(), Visibility: IncludeTombstoned})
	if err != nil {
		return nil, fmt.Errorf("list %s children of %s: %w", kind, parent, err)
	}
	return items, nil
}

func purgeBatch(ctx context.Context, backend Backend, refs []entity.Ref) ([]entity.Ref, error) {
	tx, err := backend.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var purged []entity.Ref
	for _, ref := range refs {
		it, err := tx.Get(ctx, ref)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !it.IsDeleted {
			// Restored since it was listed.
			continue
		}
		if err := tx.Purge(ctx, ref); err != nil {
			return nil, err
		}
		purged = append(purged, ref)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("purge batch: %w", err)
	}
	return purged, nil
}
