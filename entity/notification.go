package entity

// Notification is delivered to a set of users about some subject record.
type Notification struct {
	Meta
	Tombstone

	Organization string   `dynamodbav:"organization" validate:"required"`
	Department   string   `dynamodbav:"department,omitempty"`
	Type         string   `dynamodbav:"type,omitempty"`
	Title        string   `dynamodbav:"title" validate:"required"`
	Message      string   `dynamodbav:"message,omitempty"`
	Recipients   []string `dynamodbav:"recipients" validate:"required,min=1"`
	SubjectKind  Kind     `dynamodbav:"subject_kind,omitempty"`
	SubjectID    string   `dynamodbav:"subject_id,omitempty"`
	CreatedBy    string   `dynamodbav:"created_by,omitempty"`
}

func (n *Notification) Kind() Kind { return KindNotification }

func (n *Notification) Scope() Scope {
	return Scope{Organization: n.Organization, Department: n.Department}
}

func (n *Notification) Owner() Ref { return NewRef(KindOrganization, n.Organization) }

// Subject returns the polymorphic record the notification is about.
func (n *Notification) Subject() Ref { return NewRef(n.SubjectKind, n.SubjectID) }

func (n *Notification) References() []Reference {
	refs := []Reference{
		{Field: "recipients", Kind: KindUser, IDs: n.Recipients, MinLive: 1},
		{Field: "created_by", Kind: KindUser, IDs: single(n.CreatedBy)},
	}
	if subject := n.Subject(); !subject.IsZero() {
		refs = append(refs, Reference{Field: "subject", Kind: subject.Kind, IDs: single(subject.ID)})
	}
	return refs
}

// DetachUser removes a user from the recipient list.
func (n *Notification) DetachUser(userID string) int {
	var removed int
	n.Recipients, removed = removeID(n.Recipients, userID)
	return removed
}

// DropReferences clears recipients, the subject or the creator.
func (n *Notification) DropReferences(field string, ids []string) int {
	var removed int
	switch field {
	case "recipients":
		n.Recipients, removed = removeIDs(n.Recipients, ids)
	case "created_by":
		removed = dropScalar(&n.CreatedBy, ids)
	case "subject":
		if removed = dropScalar(&n.SubjectID, ids); removed > 0 {
			n.SubjectKind = ""
		}
	}
	return removed
}

func (n *Notification) isRecord() {}
