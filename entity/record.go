package entity

import (
	"strings"
	"time"
)

// Meta holds the fields every stored record carries.
type Meta struct {
	ID        string    `dynamodbav:"id" validate:"required"`
	Version   int64     `dynamodbav:"version"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

// GetID returns the record identifier.
func (m *Meta) GetID() string { return m.ID }

// Metadata exposes the shared fields for the store.
func (m *Meta) Metadata() *Meta { return m }

// Tombstone is the logical deletion state of a record.
type Tombstone struct {
	IsDeleted bool       `dynamodbav:"is_deleted"`
	DeletedAt *time.Time `dynamodbav:"deleted_at,omitempty"`
	DeletedBy string     `dynamodbav:"deleted_by,omitempty"`
}

// TombstoneState exposes the tombstone for in-place transitions.
func (t *Tombstone) TombstoneState() *Tombstone { return t }

// MarkDeleted tombstones the record. It returns false and leaves the
// existing stamp untouched when the record is already tombstoned.
func (t *Tombstone) MarkDeleted(at time.Time, by string) bool {
	if t.IsDeleted {
		return false
	}
	at = at.UTC()
	t.IsDeleted = true
	t.DeletedAt = &at
	t.DeletedBy = by
	return true
}

// Clear revives the record. It returns false when the record is already live.
func (t *Tombstone) Clear() bool {
	if !t.IsDeleted {
		return false
	}
	t.IsDeleted = false
	t.DeletedAt = nil
	t.DeletedBy = ""
	return true
}

// Tombstonable is implemented by every soft-deletable record.
type Tombstonable interface {
	TombstoneState() *Tombstone
}

// Scope is the tenant placement of a record.
type Scope struct {
	Organization string
	Department   string
}

// Record is the sealed interface implemented by every entity kind.
type Record interface {
	Tombstonable

	// Kind returns the entity kind.
	Kind() Kind

	// GetID returns the record identifier.
	GetID() string

	// Metadata returns the shared stored fields.
	Metadata() *Meta

	// Scope returns the tenant (and department, where the kind has one).
	Scope() Scope

	// Owner returns the record whose lifecycle controls this one.
	// Organizations return the zero Ref.
	Owner() Ref

	// References lists the associative (non-owning) references.
	References() []Reference

	isRecord()
}

// RefOf returns the type-qualified reference of a record.
func RefOf(r Record) Ref {
	return Ref{Kind: r.Kind(), ID: r.GetID()}
}

// Reference is a non-owning pointer set from one record to others.
type Reference struct {
	// Field is the attribute name holding the reference (e.g., "watchers").
	Field string

	// Kind is the kind of every referenced record.
	Kind Kind

	// IDs are the referenced identifiers (empty entries are ignored).
	IDs []string

	// MinLive is the number of live targets required for the holder to be live.
	MinLive int

	// SameDepartment requires targets to share the holder's department.
	// Targets without a department are organization-wide and always match.
	SameDepartment bool
}

// UniqueField is a value that must be unique among live records of the same
// kind inside Scope.
type UniqueField struct {
	Field string
	Value string
	Scope string
}

// UniqueFielder is implemented by kinds with uniqueness constraints.
type UniqueFielder interface {
	UniqueFields() []UniqueField
}

// NormalizeUnique folds a value for case-insensitive uniqueness comparison.
func NormalizeUnique(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func uniqueIf(field, value, scope string) []UniqueField {
	v := NormalizeUnique(value)
	if v == "" {
		return nil
	}
	return []UniqueField{{Field: field, Value: v, Scope: scope}}
}

func single(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

// removeID deletes every occurrence of id and reports how many were removed.
func removeID(ids []string, id string) ([]string, int) {
	out := ids[:0]
	removed := 0
	for _, v := range ids {
		if v == id {
			removed++
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, removed
	}
	return out, removed
}

// UserDetacher is implemented by kinds holding user references that are
// removed, not cascaded, when the user is deleted.
type UserDetacher interface {
	Record
	DetachUser(userID string) int
}

// ReferenceDropper is implemented by kinds whose reference lists can shed
// ids that no longer resolve. Required attribution fields (created_by,
// uploaded_by) are never dropped.
type ReferenceDropper interface {
	Record
	DropReferences(field string, ids []string) int
}

func removeIDs(list, ids []string) ([]string, int) {
	removed := 0
	for _, id := range ids {
		var n int
		list, n = removeID(list, id)
		removed += n
	}
	return list, removed
}

func dropScalar(v *string, ids []string) int {
	for _, id := range ids {
		if *v != "" && *v == id {
			*v = ""
			return 1
		}
	}
	return 0
}

func dropUsages(usages []MaterialUsage, ids []string) ([]MaterialUsage, int) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := usages[:0]
	removed := 0
	for _, u := range usages {
		if drop[u.Material] {
			removed++
			continue
		}
		out = append(out, u)
	}
	if len(out) == 0 {
		return nil, removed
	}
	return out, removed
}
