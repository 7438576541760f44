package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/store"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// clock is a settable test clock.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFixture(t *testing.T) (*store.MemoryBackend, *store.Collections, *clock) {
	t.Helper()
	clk := &clock{now: epoch}
	return store.NewMemoryBackend(), store.NewCollections(nil, clk.Now), clk
}

// within runs fn in a transaction and commits it.
func within(t *testing.T, b store.Backend, fn func(ctx context.Context, tx store.Tx) error) error {
	t.Helper()
	ctx := context.Background()
	tx, err := b.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit(ctx)
}

func mustWithin(t *testing.T, b store.Backend, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	if err := within(t, b, fn); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func seedUser(t *testing.T, b store.Backend, c *store.Collections, id, email string) *entity.User {
	t.Helper()
	u := &entity.User{
		Meta:         entity.Meta{ID: id},
		Organization: "o1",
		Department:   "d1",
		FirstName:    "Test",
		LastName:     id,
		Email:        email,
		Role:         entity.RoleUser,
	}
	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		return c.Users.Insert(ctx, tx, u)
	})
	return u
}

func TestCollection_InsertAndGet(t *testing.T) {
	b, c, _ := newFixture(t)
	seedUser(t, b, c, "u1", "ann@example.com")

	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		u, err := c.Users.Get(ctx, tx, "u1")
		if err != nil {
			return err
		}
		if u.Email != "ann@example.com" || u.Version != 1 {
			t.Errorf("unexpected user %+v", u)
		}
		if !u.CreatedAt.Equal(epoch) {
			t.Errorf("CreatedAt = %v, want %v", u.CreatedAt, epoch)
		}
		return nil
	})
}

func TestCollection_GetMissing(t *testing.T) {
	b, c, _ := newFixture(t)
	err := within(t, b, func(ctx context.Context, tx store.Tx) error {
		_, err := c.Users.Get(ctx, tx, "nope")
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCollection_SoftDeleteIsIdempotent(t *testing.T) {
	b, c, clk := newFixture(t)
	seedUser(t, b, c, "u1", "ann@example.com")

	var firstStamp time.Time
	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		u, changed, err := c.Users.SoftDelete(ctx, tx, "u1", "actor-1")
		if err != nil {
			return err
		}
		if !changed {
			t.Error("first soft delete should report a change")
		}
		firstStamp = *u.DeletedAt
		return nil
	})

	clk.Advance(time.Hour)
	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		u, changed, err := c.Users.SoftDelete(ctx, tx, "u1", "actor-2")
		if err != nil {
			return err
		}
		if changed {
			t.Error("second soft delete should be a no-op")
		}
		if !u.DeletedAt.Equal(firstStamp) || u.DeletedBy != "actor-1" {
			t.Errorf("tombstone re-stamped: %v by %q", u.DeletedAt, u.DeletedBy)
		}
		return nil
	})
}

func TestCollection_RestoreIsIdempotent(t *testing.T) {
	b, c, _ := newFixture(t)
	seedUser(t, b, c, "u1", "ann@example.com")

	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		_, _, err := c.Users.SoftDelete(ctx, tx, "u1", "actor")
		return err
	})
	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		u, changed, err := c.Users.Restore(ctx, tx, "u1")
		if err != nil {
			return err
		}
		if !changed || u.IsDeleted || u.DeletedAt != nil || u.DeletedBy != "" {
			t.Errorf("restore did not clear tombstone: %+v", u.Tombstone)
		}
		_, changed, err = c.Users.Restore(ctx, tx, "u1")
		if changed {
			t.Error("second restore should be a no-op")
		}
		return err
	})
}

func TestCollection_TombstoneInvisibility(t *testing.T) {
	b, c, _ := newFixture(t)
	seedUser(t, b, c, "u1", "a@example.com")
	seedUser(t, b, c, "u2", "b@example.com")

	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		_, _, err := c.Users.SoftDelete(ctx, tx, "u1", "actor")
		return err
	})

	tests := []struct {
		name string
		vis  store.Visibility
		want []string
	}{
		{"live", store.Live, []string{"u2"}},
		{"include tombstoned", store.IncludeTombstoned, []string{"u1", "u2"}},
		{"only tombstoned", store.OnlyTombstoned, []string{"u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
				users, err := c.Users.Find(ctx, tx, store.Filter{Organization: "o1", Visibility: tt.vis})
				if err != nil {
					return err
				}
				var got []string
				for _, u := range users {
					got = append(got, u.ID)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Errorf("got %v, want %v", got, tt.want)
					}
				}
				n, err := c.Users.Count(ctx, tx, store.Filter{Organization: "o1", Visibility: tt.vis})
				if n != len(tt.want) {
					t.Errorf("Count = %d, want %d", n, len(tt.want))
				}
				return err
			})
		})
	}

	err := within(t, b, func(ctx context.Context, tx store.Tx) error {
		_, err := c.Users.Get(ctx, tx, "u1")
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get of tombstoned user: expected ErrNotFound, got %v", err)
	}
}

func TestCollection_DeleteIsForbidden(t *testing.T) {
	b, c, _ := newFixture(t)
	seedUser(t, b, c, "u1", "a@example.com")

	err := within(t, b, func(ctx context.Context, tx store.Tx) error {
		return c.Users.Delete(ctx, tx, "u1")
	})
	if !errors.Is(err, store.ErrDirectDeletionForbidden) {
		t.Errorf("expected ErrDirectDeletionForbidden, got %v", err)
	}

	err = within(t, b, func(ctx context.Context, tx store.Tx) error {
		return c.Delete(ctx, tx, entity.NewRef(entity.KindTask, "t1"))
	})
	if !errors.Is(err, store.ErrDirectDeletionForbidden) {
		t.Errorf("expected ErrDirectDeletionForbidden, got %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("record count changed: %d", b.Len())
	}
}

func TestCollection_UpdatePreservesTombstoneAndChecksVersion(t *testing.T) {
	b, c, _ := newFixture(t)
	u := seedUser(t, b, c, "u1", "a@example.com")

	stale := *u
	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		u.Position = "Lead"
		u.IsDeleted = true // ignored: tombstones only change through SoftDelete
		return c.Users.Update(ctx, tx, u)
	})
	if u.Version != 2 {
		t.Errorf("expected version 2 after update, got %d", u.Version)
	}

	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		got, err := c.Users.Get(ctx, tx, "u1")
		if err != nil {
			return err
		}
		if got.Position != "Lead" || got.IsDeleted {
			t.Errorf("unexpected stored user %+v", got)
		}
		return nil
	})

	err := within(t, b, func(ctx context.Context, tx store.Tx) error {
		stale.Position = "Stale"
		return c.Users.Update(ctx, tx, &stale)
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("expected ErrConcurrentModification for stale update, got %v", err)
	}
}

func TestCollection_UniqueAmongLiveOnly(t *testing.T) {
	b, c, _ := newFixture(t)
	seedUser(t, b, c, "u1", "ann@example.com")

	err := within(t, b, func(ctx context.Context, tx store.Tx) error {
		return c.Users.Insert(ctx, tx, &entity.User{
			Meta: entity.Meta{ID: "u2"}, Organization: "o1", Department: "d1",
			FirstName: "Ann", LastName: "Two", Email: "ANN@example.com", Role: entity.RoleUser,
		})
	})
	if !errors.Is(err, store.ErrDuplicateValue) {
		t.Fatalf("expected ErrDuplicateValue, got %v", err)
	}

	// Tombstoned records release their unique values.
	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		_, _, err := c.Users.SoftDelete(ctx, tx, "u1", "actor")
		return err
	})
	seedUser(t, b, c, "u3", "ann@example.com")

	// Restoring the original now collides.
	err = within(t, b, func(ctx context.Context, tx store.Tx) error {
		_, _, err := c.Users.Restore(ctx, tx, "u1")
		return err
	})
	if !errors.Is(err, store.ErrDuplicateValue) {
		t.Errorf("expected ErrDuplicateValue on restore, got %v", err)
	}
}

func TestCollection_UniqueOwner(t *testing.T) {
	b, c, _ := newFixture(t)
	u := seedUser(t, b, c, "u1", "ann@example.com")
	key := store.UniqueKey(entity.KindUser, entity.UniqueField{Field: "email", Value: "ann@example.com", Scope: "o1"})

	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		owner, ok, err := tx.UniqueOwner(ctx, key)
		if err != nil {
			return err
		}
		if !ok || owner != entity.RefOf(u) {
			t.Errorf("UniqueOwner = %v, %v", owner, ok)
		}

		if _, _, err := c.Users.SoftDelete(ctx, tx, "u1", "actor"); err != nil {
			return err
		}
		if _, ok, _ := tx.UniqueOwner(ctx, key); ok {
			t.Error("tombstoned record should not own a unique key inside the transaction")
		}
		return nil
	})
}

func TestTx_ReadYourWritesAndRollback(t *testing.T) {
	b, c, _ := newFixture(t)
	seedUser(t, b, c, "u1", "a@example.com")

	ctx := context.Background()
	tx, err := b.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Users.SoftDelete(ctx, tx, "u1", "actor"); err != nil {
		t.Fatal(err)
	}
	n, err := c.Users.Count(ctx, tx, store.Filter{Department: "d1"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("transaction should observe its own tombstone, counted %d live", n)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, store.ErrTxDone) {
		t.Errorf("expected ErrTxDone after rollback, got %v", err)
	}

	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		_, err := c.Users.Get(ctx, tx, "u1")
		return err
	})
}

func TestTx_ConflictingCommits(t *testing.T) {
	b, c, _ := newFixture(t)
	seedUser(t, b, c, "u1", "a@example.com")
	ctx := context.Background()

	tx1, _ := b.Begin(ctx)
	tx2, _ := b.Begin(ctx)

	if _, _, err := c.Users.SoftDelete(ctx, tx1, "u1", "first"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Users.SoftDelete(ctx, tx2, "u1", "second"); err != nil {
		t.Fatal(err)
	}

	if err := tx1.Commit(ctx); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := tx2.Commit(ctx); !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		u, err := c.Users.Lookup(ctx, tx, "u1", store.OnlyTombstoned)
		if err != nil {
			return err
		}
		if u.DeletedBy != "first" {
			t.Errorf("losing transaction leaked: deleted by %q", u.DeletedBy)
		}
		return nil
	})
}

func TestTx_DisjointWritesBothCommit(t *testing.T) {
	b, c, _ := newFixture(t)
	seedUser(t, b, c, "u1", "a@example.com")
	seedUser(t, b, c, "u2", "b@example.com")
	ctx := context.Background()

	tx1, _ := b.Begin(ctx)
	tx2, _ := b.Begin(ctx)

	// Each transaction reads the record the other one writes.
	for _, step := range []struct {
		tx          store.Tx
		read, write string
	}{
		{tx1, "u2", "u1"},
		{tx2, "u1", "u2"},
	} {
		if _, err := c.Users.Get(ctx, step.tx, step.read); err != nil {
			t.Fatal(err)
		}
		if _, _, err := c.Users.SoftDelete(ctx, step.tx, step.write, "actor"); err != nil {
			t.Fatal(err)
		}
	}

	if err := tx1.Commit(ctx); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := tx2.Commit(ctx); err != nil {
		t.Fatalf("second commit: %v", err)
	}

	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		n, err := c.Users.Count(ctx, tx, store.Filter{Organization: "o1", Visibility: store.OnlyTombstoned})
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("expected both users tombstoned, got %d", n)
		}
		return nil
	})
}

func TestCollections_DispatchByKind(t *testing.T) {
	b, c, _ := newFixture(t)
	seedUser(t, b, c, "u1", "a@example.com")
	ref := entity.NewRef(entity.KindUser, "u1")

	mustWithin(t, b, func(ctx context.Context, tx store.Tx) error {
		rec, changed, err := c.SoftDelete(ctx, tx, ref, "actor")
		if err != nil {
			return err
		}
		if !changed || rec.Kind() != entity.KindUser {
			t.Errorf("unexpected soft delete result %v %v", rec, changed)
		}
		loaded, err := c.Load(ctx, tx, ref)
		if err != nil {
			return err
		}
		if !loaded.TombstoneState().IsDeleted {
			t.Error("Load should return tombstoned records")
		}
		children, err := c.Children(ctx, tx, entity.NewRef(entity.KindDepartment, "d1"), entity.KindUser, store.IncludeTombstoned)
		if err != nil {
			return err
		}
		if len(children) != 1 {
			t.Errorf("expected 1 child, got %d", len(children))
		}
		return nil
	})

	err := within(t, b, func(ctx context.Context, tx store.Tx) error {
		_, err := c.Load(ctx, tx, entity.NewRef("planet", "p1"))
		return err
	})
	if err == nil {
		t.Error("expected error for unknown kind")
	}
}
