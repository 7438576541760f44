package entity

import "time"

// Relationship is an ownership edge from a parent kind to a child kind.
type Relationship struct {
	// Parent is the owning kind.
	Parent Kind

	// Child is the owned kind.
	Child Kind

	// Polymorphic marks children whose owner may be one of several kinds.
	// Polymorphic children are always visited after the parent's other children.
	Polymorphic bool
}

// KindSpec describes per-kind catalog data.
type KindSpec struct {
	Kind Kind

	// Departmental kinds always carry a department scope field.
	Departmental bool

	// Retention is how long a tombstoned record survives before the store
	// purges it. Zero means never purged.
	Retention time.Duration
}

// Registry holds the ownership catalog used by cascades.
type Registry struct {
	relationships []Relationship
	byParent      map[Kind][]Relationship
	restoreOrder  map[Kind][]Relationship
	byChild       map[Kind][]Kind
	specs         map[Kind]KindSpec
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byParent:     make(map[Kind][]Relationship),
		restoreOrder: make(map[Kind][]Relationship),
		byChild:      make(map[Kind][]Kind),
		specs:        make(map[Kind]KindSpec),
	}
}

// Register adds an ownership edge. Edges of one parent are kept in
// registration order, except polymorphic edges which sort last.
func (r *Registry) Register(rel Relationship) {
	r.relationships = append(r.relationships, rel)
	r.byParent[rel.Parent] = insertOrdered(r.byParent[rel.Parent], rel)
	r.byChild[rel.Child] = append(r.byChild[rel.Child], rel.Parent)
}

// RegisterKind records catalog data for a kind.
func (r *Registry) RegisterKind(spec KindSpec) {
	r.specs[spec.Kind] = spec
}

// SetRestoreOrder overrides the order children of parent are visited on
// restore. Kinds not listed keep their delete order and follow the listed ones.
func (r *Registry) SetRestoreOrder(parent Kind, children ...Kind) {
	rels := r.byParent[parent]
	ordered := make([]Relationship, 0, len(rels))
	used := make(map[Kind]bool, len(children))
	for _, child := range children {
		for _, rel := range rels {
			if rel.Child == child && !used[child] {
				ordered = append(ordered, rel)
				used[child] = true
			}
		}
	}
	for _, rel := range rels {
		if !used[rel.Child] {
			ordered = insertOrdered(ordered, rel)
		}
	}
	r.restoreOrder[parent] = ordered
}

// ChildrenOf returns the child relationships of a kind in delete order.
func (r *Registry) ChildrenOf(parent Kind) []Relationship {
	return r.byParent[parent]
}

// RestoreChildrenOf returns the child relationships of a kind in restore order.
func (r *Registry) RestoreChildrenOf(parent Kind) []Relationship {
	if rels, ok := r.restoreOrder[parent]; ok {
		return rels
	}
	return r.byParent[parent]
}

// ParentsOf returns the kinds that may own child.
func (r *Registry) ParentsOf(child Kind) []Kind {
	return r.byChild[child]
}

// CanOwn reports whether parent is a registered owner kind of child.
func (r *Registry) CanOwn(parent, child Kind) bool {
	for _, k := range r.byChild[child] {
		if k == parent {
			return true
		}
	}
	return false
}

// AllRelationships returns every registered edge.
func (r *Registry) AllRelationships() []Relationship {
	return r.relationships
}

// HasChildren reports whether the kind owns any other kind.
func (r *Registry) HasChildren(parent Kind) bool {
	return len(r.byParent[parent]) > 0
}

// Spec returns the catalog data of a kind.
func (r *Registry) Spec(k Kind) (KindSpec, bool) {
	spec, ok := r.specs[k]
	return spec, ok
}

// Retention returns the purge window of a kind (zero when never purged).
func (r *Registry) Retention(k Kind) time.Duration {
	return r.specs[k].Retention
}

func insertOrdered(rels []Relationship, rel Relationship) []Relationship {
	if rel.Polymorphic {
		return append(rels, rel)
	}
	i := len(rels)
	for i > 0 && rels[i-1].Polymorphic {
		i--
	}
	rels = append(rels, Relationship{})
	copy(rels[i+1:], rels[i:])
	rels[i] = rel
	return rels
}

const day = 24 * time.Hour

// DefaultRegistry returns the ownership catalog of the platform.
//
// On delete, siblings holding references (tasks, notifications) are visited
// before the siblings they reference (users, vendors, materials) so their
// reference lists are frozen intact. Restore reverses that.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for _, spec := range []KindSpec{
		{Kind: KindOrganization},
		{Kind: KindDepartment, Retention: 365 * day},
		{Kind: KindUser, Departmental: true, Retention: 365 * day},
		{Kind: KindTask, Departmental: true},
		{Kind: KindTaskActivity, Departmental: true, Retention: 180 * day},
		{Kind: KindTaskComment, Departmental: true, Retention: 180 * day},
		{Kind: KindAttachment, Departmental: true, Retention: 90 * day},
		{Kind: KindMaterial, Retention: 180 * day},
		{Kind: KindVendor, Retention: 180 * day},
		{Kind: KindNotification, Retention: 30 * day},
	} {
		r.RegisterKind(spec)
	}

	for _, rel := range []Relationship{
		{Parent: KindOrganization, Child: KindNotification},
		{Parent: KindOrganization, Child: KindDepartment},
		{Parent: KindOrganization, Child: KindVendor},
		{Parent: KindOrganization, Child: KindMaterial},

		{Parent: KindDepartment, Child: KindTask},
		{Parent: KindDepartment, Child: KindUser},

		{Parent: KindTask, Child: KindTaskActivity},
		{Parent: KindTask, Child: KindTaskComment, Polymorphic: true},
		{Parent: KindTask, Child: KindAttachment, Polymorphic: true},

		{Parent: KindTaskActivity, Child: KindTaskComment, Polymorphic: true},
		{Parent: KindTaskActivity, Child: KindAttachment, Polymorphic: true},

		{Parent: KindTaskComment, Child: KindTaskComment, Polymorphic: true},
		{Parent: KindTaskComment, Child: KindAttachment, Polymorphic: true},
	} {
		r.Register(rel)
	}

	r.SetRestoreOrder(KindOrganization, KindMaterial, KindVendor, KindDepartment, KindNotification)
	r.SetRestoreOrder(KindDepartment, KindUser, KindTask)

	return r
}
