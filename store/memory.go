package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jacentio/canopy/entity"
)

// MemoryBackend is an in-process Backend with snapshot isolation and
// first-committer-wins conflict detection. It also stands in for DynamoDB
// TTL through PurgeExpired.
type MemoryBackend struct {
	mu     sync.Mutex
	items  map[entity.Ref]*Item
	unique map[string]entity.Ref
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		items:  make(map[entity.Ref]*Item),
		unique: make(map[string]entity.Ref),
	}
}

// Begin starts a transaction reading from a snapshot of the committed state.
func (m *MemoryBackend) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := make(map[entity.Ref]*Item, len(m.items))
	for k, v := range m.items {
		snap[k] = v
	}
	unique := make(map[string]entity.Ref, len(m.unique))
	for k, v := range m.unique {
		unique[k] = v
	}

	return &memoryTx{
		backend: m,
		items:   snap,
		unique:  unique,
		buf:     newTxBuffer(),
	}, nil
}

// Len returns the number of stored records, live or tombstoned.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// PurgeExpired physically removes tombstoned records whose TTL is at or
// before now and returns them, oldest key first.
func (m *MemoryBackend) PurgeExpired(now time.Time) []*Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged []*Item
	for ref, it := range m.items {
		if !it.IsDeleted || !IsExpired(it, now) {
			continue
		}
		purged = append(purged, it.clone())
		delete(m.items, ref)
	}
	sortItems(purged)
	return purged
}

type memoryTx struct {
	backend *MemoryBackend
	items   map[entity.Ref]*Item
	unique  map[string]entity.Ref
	buf     *txBuffer
}

func (t *memoryTx) fetch(_ context.Context, ref entity.Ref) (*Item, error) {
	it, ok := t.items[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return it, nil
}

func (t *memoryTx) Get(ctx context.Context, ref entity.Ref) (*Item, error) {
	return t.buf.get(ctx, ref, t.fetch)
}

func (t *memoryTx) Query(_ context.Context, f Filter) ([]*Item, error) {
	if t.buf.done {
		return nil, ErrTxDone
	}
	unlimited := f
	unlimited.Limit = 0

	var fetched []*Item
	for _, it := range t.items {
		if unlimited.Match(it) {
			fetched = append(fetched, it)
		}
	}
	sortItems(fetched)

	return t.buf.merge(f, fetched), nil
}

func (t *memoryTx) UniqueOwner(ctx context.Context, key string) (entity.Ref, bool, error) {
	return t.buf.uniqueOwner(ctx, key, func(context.Context, string) (entity.Ref, bool, error) {
		ref, ok := t.unique[key]
		return ref, ok, nil
	})
}

func (t *memoryTx) Put(_ context.Context, item *Item) error {
	return t.buf.put(item)
}

func (t *memoryTx) Purge(_ context.Context, ref entity.Ref) error {
	return t.buf.purge(ref)
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.buf.done {
		return ErrTxDone
	}
	defer t.buf.finish()

	if err := ctx.Err(); err != nil {
		return err
	}

	writes := t.buf.pending()
	if len(writes) == 0 {
		return nil
	}

	m := t.backend
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		cur, exists := m.items[w.ref]
		switch {
		case w.expected == 0 && exists:
			return fmt.Errorf("%s: %w", w.ref, ErrAlreadyExists)
		case w.expected > 0 && (!exists || cur.Version != w.expected):
			return fmt.Errorf("%s: %w", w.ref, ErrConcurrentModification)
		}
	}

	unique := make(map[string]entity.Ref, len(m.unique))
	for k, v := range m.unique {
		unique[k] = v
	}
	for _, w := range writes {
		if cur, ok := m.items[w.ref]; ok {
			for _, k := range cur.UniqueKeys {
				if unique[k] == w.ref {
					delete(unique, k)
				}
			}
		}
	}
	for _, w := range writes {
		if w.purge {
			continue
		}
		for _, k := range w.item.UniqueKeys {
			if owner, ok := unique[k]; ok && owner != w.ref {
				return fmt.Errorf("%s conflicts with %s: %w", w.ref, owner, ErrDuplicateValue)
			}
			unique[k] = w.ref
		}
	}

	for _, w := range writes {
		if w.purge {
			delete(m.items, w.ref)
			continue
		}
		m.items[w.ref] = w.item.clone()
	}
	m.unique = unique
	return nil
}

func (t *memoryTx) Rollback() error {
	if !t.buf.done {
		t.buf.finish()
	}
	return nil
}

// sortItems orders items by creation time then reference.
func sortItems(items []*Item) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := stringAttr(items[i].Raw, AttrCreatedAt), stringAttr(items[j].Raw, AttrCreatedAt)
		if ci != cj {
			return ci < cj
		}
		return items[i].Ref().String() < items[j].Ref().String()
	})
}
