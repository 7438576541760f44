package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacentio/canopy/entity"
)

// Backend is a transactional document store.
type Backend interface {
	// Begin starts a transaction.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a unit of work. Reads observe the transaction's own buffered writes.
// Writes are applied atomically by Commit, which fails with
// ErrConcurrentModification when any record written by the transaction was
// changed by another committer. Records only read are not re-checked, so two
// transactions writing disjoint records both commit (snapshot isolation).
type Tx interface {
	// Get returns a record, live or tombstoned, or ErrNotFound.
	Get(ctx context.Context, ref entity.Ref) (*Item, error)

	// Query returns the records matching the filter.
	Query(ctx context.Context, f Filter) ([]*Item, error)

	// UniqueOwner returns the live record holding a unique constraint key.
	UniqueOwner(ctx context.Context, key string) (entity.Ref, bool, error)

	// Put buffers an insert (for records not read by this transaction) or an
	// update (for records read by it) and sets item.Version to the version
	// the record will have once committed.
	Put(ctx context.Context, item *Item) error

	// Purge buffers the physical removal of a record read by this transaction.
	// Only the TTL reaper purges records.
	Purge(ctx context.Context, ref entity.Ref) error

	// Commit applies every buffered write or none of them.
	Commit(ctx context.Context) error

	// Rollback discards the buffered writes. Rolling back a finished
	// transaction is a no-op.
	Rollback() error
}

// write is a buffered mutation of one record.
type write struct {
	ref      entity.Ref
	item     *Item // nil when purge is set
	prev     *Item // committed state as read, nil for inserts
	expected int64 // committed version the write depends on, 0 for inserts
	purge    bool
}

// txBuffer implements the read-your-writes overlay shared by the backends.
type txBuffer struct {
	done   bool
	reads  map[entity.Ref]*Item // nil value: read and found absent
	writes map[entity.Ref]*write
	order  []entity.Ref
}

func newTxBuffer() *txBuffer {
	return &txBuffer{
		reads:  make(map[entity.Ref]*Item),
		writes: make(map[entity.Ref]*write),
	}
}

type fetchFunc func(ctx context.Context, ref entity.Ref) (*Item, error)

func (b *txBuffer) get(ctx context.Context, ref entity.Ref, fetch fetchFunc) (*Item, error) {
	if b.done {
		return nil, ErrTxDone
	}
	if w, ok := b.writes[ref]; ok {
		if w.purge {
			return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return w.item.clone(), nil
	}
	if it, ok := b.reads[ref]; ok {
		if it == nil {
			return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return it.clone(), nil
	}

	it, err := fetch(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		b.reads[ref] = nil
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	b.reads[ref] = it
	return it.clone(), nil
}

// merge overlays buffered writes on backend query results. fetched must
// already match f (ignoring Limit).
func (b *txBuffer) merge(f Filter, fetched []*Item) []*Item {
	var out []*Item
	seen := make(map[entity.Ref]bool, len(fetched))

	for _, it := range fetched {
		ref := it.Ref()
		seen[ref] = true
		if w, ok := b.writes[ref]; ok {
			if !w.purge && f.Match(w.item) {
				out = append(out, w.item.clone())
			}
			continue
		}
		if prev, ok := b.reads[ref]; ok && prev != nil {
			if f.Match(prev) {
				out = append(out, prev.clone())
			}
			continue
		}
		b.reads[ref] = it
		out = append(out, it.clone())
	}

	for _, ref := range b.order {
		if seen[ref] {
			continue
		}
		w := b.writes[ref]
		if !w.purge && f.Match(w.item) {
			out = append(out, w.item.clone())
		}
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (b *txBuffer) uniqueOwner(ctx context.Context, key string, committed func(context.Context, string) (entity.Ref, bool, error)) (entity.Ref, bool, error) {
	if b.done {
		return entity.Ref{}, false, ErrTxDone
	}
	for _, ref := range b.order {
		w := b.writes[ref]
		if w.purge {
			continue
		}
		for _, k := range w.item.UniqueKeys {
			if k == key {
				return ref, true, nil
			}
		}
	}

	ref, ok, err := committed(ctx, key)
	if err != nil || !ok {
		return entity.Ref{}, false, err
	}
	if _, rewritten := b.writes[ref]; rewritten {
		// The buffered version of the owner no longer holds the key.
		return entity.Ref{}, false, nil
	}
	return ref, true, nil
}

func (b *txBuffer) put(item *Item) error {
	if b.done {
		return ErrTxDone
	}
	ref := item.Ref()
	if ref.IsZero() {
		return fmt.Errorf("put: item has no kind or id")
	}

	if w, ok := b.writes[ref]; ok {
		if w.purge {
			return fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		item.setVersion(w.expected + 1)
		w.item = item.clone()
		return nil
	}

	w := &write{ref: ref}
	if prev, ok := b.reads[ref]; ok && prev != nil {
		w.prev = prev
		w.expected = prev.Version
	} else if item.Version > 0 {
		return fmt.Errorf("put %s: update of a record not read in this transaction", ref)
	}
	item.setVersion(w.expected + 1)
	w.item = item.clone()

	b.writes[ref] = w
	b.order = append(b.order, ref)
	return nil
}

func (b *txBuffer) purge(ref entity.Ref) error {
	if b.done {
		return ErrTxDone
	}
	if w, ok := b.writes[ref]; ok {
		if w.purge {
			return nil
		}
		if w.prev == nil {
			// Never committed: drop the buffered insert.
			delete(b.writes, ref)
			for i, r := range b.order {
				if r == ref {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
			return nil
		}
		w.item = nil
		w.purge = true
		return nil
	}

	prev, ok := b.reads[ref]
	if !ok || prev == nil {
		return fmt.Errorf("purge %s: %w", ref, ErrNotFound)
	}
	b.writes[ref] = &write{ref: ref, prev: prev, expected: prev.Version, purge: true}
	b.order = append(b.order, ref)
	return nil
}

// pending returns the buffered writes in the order they were first made.
func (b *txBuffer) pending() []*write {
	out := make([]*write, 0, len(b.order))
	for _, ref := range b.order {
		out = append(out, b.writes[ref])
	}
	return out
}

func (b *txBuffer) finish() {
	b.done = true
	b.reads = nil
	b.writes = nil
	b.order = nil
}
