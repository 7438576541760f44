package entity

import (
	"fmt"
	"strings"
)

// Kind identifies an entity type in the ownership tree.
type Kind string

const (
	KindOrganization Kind = "organization"
	KindDepartment   Kind = "department"
	KindUser         Kind = "user"
	KindTask         Kind = "task"
	KindTaskActivity Kind = "task_activity"
	KindTaskComment  Kind = "task_comment"
	KindAttachment   Kind = "attachment"
	KindMaterial     Kind = "material"
	KindVendor       Kind = "vendor"
	KindNotification Kind = "notification"
)

// Kinds lists every known kind, roots first.
var Kinds = []Kind{
	KindOrganization,
	KindDepartment,
	KindUser,
	KindTask,
	KindTaskActivity,
	KindTaskComment,
	KindAttachment,
	KindMaterial,
	KindVendor,
	KindNotification,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind converts a string (case-insensitive, "-" or "_" separated) to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// Ref is a type-qualified reference to a single record.
type Ref struct {
	Kind Kind
	ID   string
}

// NewRef builds a reference.
func NewRef(kind Kind, id string) Ref {
	return Ref{Kind: kind, ID: id}
}

// String returns the type-qualified reference (e.g., "department#uuid").
func (r Ref) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Kind) + "#" + r.ID
}

// IsZero reports whether the reference points nowhere.
func (r Ref) IsZero() bool {
	return r.Kind == "" || r.ID == ""
}

// ParseRef parses the output of Ref.String.
func ParseRef(s string) (Ref, error) {
	kind, id, ok := strings.Cut(s, "#")
	if !ok || id == "" {
		return Ref{}, fmt.Errorf("malformed entity reference %q", s)
	}
	k, err := ParseKind(kind)
	if err != nil {
		return Ref{}, err
	}
	return Ref{Kind: k, ID: id}, nil
}

// ParentKind is the closed set of kinds that can own comments and attachments.
type ParentKind string

const (
	ParentTask         ParentKind = "task"
	ParentTaskActivity ParentKind = "task_activity"
	ParentTaskComment  ParentKind = "task_comment"
)

// Kind maps the parent discriminator to its entity kind.
func (p ParentKind) Kind() Kind {
	switch p {
	case ParentTask:
		return KindTask
	case ParentTaskActivity:
		return KindTaskActivity
	case ParentTaskComment:
		return KindTaskComment
	}
	return ""
}

// Valid reports whether p is a known parent discriminator.
func (p ParentKind) Valid() bool {
	return p.Kind() != ""
}
