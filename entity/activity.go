package entity

// MaxCommentDepth bounds reply chains.
const MaxCommentDepth = 3

// TaskActivity is a progress entry on a project or assigned task.
type TaskActivity struct {
	Meta
	Tombstone

	Organization string          `dynamodbav:"organization" validate:"required"`
	Department   string          `dynamodbav:"department" validate:"required"`
	Task         string          `dynamodbav:"task" validate:"required"`
	Description  string          `dynamodbav:"description" validate:"required"`
	Status       TaskStatus      `dynamodbav:"status,omitempty"`
	CreatedBy    string          `dynamodbav:"created_by" validate:"required"`
	Materials    []MaterialUsage `dynamodbav:"materials,omitempty" validate:"dive"`
	MaterialIDs  []string        `dynamodbav:"material_ids,omitempty"`
}

func (a *TaskActivity) Kind() Kind { return KindTaskActivity }

func (a *TaskActivity) Scope() Scope {
	return Scope{Organization: a.Organization, Department: a.Department}
}

func (a *TaskActivity) Owner() Ref { return NewRef(KindTask, a.Task) }

func (a *TaskActivity) References() []Reference {
	return []Reference{
		{Field: "created_by", Kind: KindUser, IDs: single(a.CreatedBy)},
		{Field: "materials", Kind: KindMaterial, IDs: a.MaterialIDs, SameDepartment: true},
	}
}

// SyncMaterialIDs recomputes the material id list.
func (a *TaskActivity) SyncMaterialIDs() {
	a.MaterialIDs = materialIDs(a.Materials)
}

// DropReferences removes materials that no longer resolve.
func (a *TaskActivity) DropReferences(field string, ids []string) int {
	if field != "materials" {
		return 0
	}
	var n int
	a.Materials, n = dropUsages(a.Materials, ids)
	a.SyncMaterialIDs()
	return n
}

func (a *TaskActivity) isRecord() {}

// TaskComment is a comment on a task, an activity or another comment.
type TaskComment struct {
	Meta
	Tombstone

	Organization string     `dynamodbav:"organization" validate:"required"`
	Department   string     `dynamodbav:"department" validate:"required"`
	Task         string     `dynamodbav:"task" validate:"required"`
	ParentKind   ParentKind `dynamodbav:"parent_kind" validate:"required,oneof=task task_activity task_comment"`
	ParentID     string     `dynamodbav:"parent_id" validate:"required"`
	Depth        int        `dynamodbav:"depth" validate:"min=1"`
	Body         string     `dynamodbav:"body" validate:"required,max=2000"`
	CreatedBy    string     `dynamodbav:"created_by" validate:"required"`
	Mentions     []string   `dynamodbav:"mentions,omitempty"`
}

func (c *TaskComment) Kind() Kind { return KindTaskComment }

func (c *TaskComment) Scope() Scope {
	return Scope{Organization: c.Organization, Department: c.Department}
}

func (c *TaskComment) Owner() Ref { return NewRef(c.ParentKind.Kind(), c.ParentID) }

func (c *TaskComment) References() []Reference {
	return []Reference{
		{Field: "created_by", Kind: KindUser, IDs: single(c.CreatedBy)},
		{Field: "mentions", Kind: KindUser, IDs: c.Mentions},
	}
}

// DetachUser removes a user from the mention list.
func (c *TaskComment) DetachUser(userID string) int {
	var n int
	c.Mentions, n = removeID(c.Mentions, userID)
	return n
}

func (c *TaskComment) DropReferences(field string, ids []string) int {
	if field != "mentions" {
		return 0
	}
	var n int
	c.Mentions, n = removeIDs(c.Mentions, ids)
	return n
}

func (c *TaskComment) isRecord() {}

// CommentDepth returns the depth of a comment placed under a parent of the
// given kind. parentDepth is only used for comment parents.
func CommentDepth(parent ParentKind, parentDepth int) int {
	if parent == ParentTaskComment {
		return parentDepth + 1
	}
	return 1
}

// Attachment is file metadata hung off a task, activity or comment.
type Attachment struct {
	Meta
	Tombstone

	Organization string     `dynamodbav:"organization" validate:"required"`
	Department   string     `dynamodbav:"department" validate:"required"`
	ParentKind   ParentKind `dynamodbav:"parent_kind" validate:"required,oneof=task task_activity task_comment"`
	ParentID     string     `dynamodbav:"parent_id" validate:"required"`
	FileName     string     `dynamodbav:"file_name" validate:"required"`
	URL          string     `dynamodbav:"url" validate:"required,url"`
	ContentType  string     `dynamodbav:"content_type,omitempty"`
	Size         int64      `dynamodbav:"size" validate:"gte=0"`
	UploadedBy   string     `dynamodbav:"uploaded_by" validate:"required"`
}

func (a *Attachment) Kind() Kind { return KindAttachment }

func (a *Attachment) Scope() Scope {
	return Scope{Organization: a.Organization, Department: a.Department}
}

func (a *Attachment) Owner() Ref { return NewRef(a.ParentKind.Kind(), a.ParentID) }

func (a *Attachment) References() []Reference {
	return []Reference{
		{Field: "uploaded_by", Kind: KindUser, IDs: single(a.UploadedBy)},
	}
}

func (a *Attachment) isRecord() {}
