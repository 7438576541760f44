package entity

import "time"

// TaskType discriminates the three task sub-kinds.
type TaskType string

const (
	// TaskTypeProject is work outsourced to a vendor.
	TaskTypeProject TaskType = "ProjectTask"
	// TaskTypeRoutine is recurring in-house work consuming materials.
	TaskTypeRoutine TaskType = "RoutineTask"
	// TaskTypeAssigned is work directly assigned to users.
	TaskTypeAssigned TaskType = "AssignedTask"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeProject, TaskTypeRoutine, TaskTypeAssigned:
		return true
	}
	return false
}

// HasActivities reports whether tasks of this type may own activities.
func (t TaskType) HasActivities() bool {
	return t != TaskTypeRoutine
}

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	TaskStatusToDo       TaskStatus = "To Do"
	TaskStatusInProgress TaskStatus = "In Progress"
	TaskStatusCompleted  TaskStatus = "Completed"
	TaskStatusPending    TaskStatus = "Pending"
)

// MaterialUsage references a material and the quantity consumed.
type MaterialUsage struct {
	Material string  `dynamodbav:"material" validate:"required"`
	Quantity float64 `dynamodbav:"quantity" validate:"gte=0"`
}

// ProjectDetails are the fields of an outsourced task.
type ProjectDetails struct {
	Vendor        string     `dynamodbav:"vendor" validate:"required"`
	EstimatedCost float64    `dynamodbav:"estimated_cost,omitempty" validate:"gte=0"`
	StartDate     *time.Time `dynamodbav:"start_date,omitempty"`
	DueDate       *time.Time `dynamodbav:"due_date,omitempty"`
}

// RoutineDetails are the fields of a recurring task.
type RoutineDetails struct {
	Date      *time.Time      `dynamodbav:"date,omitempty"`
	Materials []MaterialUsage `dynamodbav:"materials,omitempty" validate:"dive"`

	// MaterialIDs mirrors Materials for membership queries.
	MaterialIDs []string `dynamodbav:"material_ids,omitempty"`
}

// AssignedDetails are the fields of a directly assigned task.
type AssignedDetails struct {
	Assignees []string   `dynamodbav:"assignees,omitempty" validate:"required,min=1"`
	StartDate *time.Time `dynamodbav:"start_date,omitempty"`
	DueDate   *time.Time `dynamodbav:"due_date,omitempty"`
}

// Task is owned by a department. Exactly one of Project, Routine or Assigned
// is set, matching Type.
type Task struct {
	Meta
	Tombstone

	Organization string     `dynamodbav:"organization" validate:"required"`
	Department   string     `dynamodbav:"department" validate:"required"`
	Type         TaskType   `dynamodbav:"type" validate:"required,oneof=ProjectTask RoutineTask AssignedTask"`
	Title        string     `dynamodbav:"title" validate:"required,max=200"`
	Description  string     `dynamodbav:"description,omitempty"`
	Status       TaskStatus `dynamodbav:"status,omitempty"`
	Priority     string     `dynamodbav:"priority,omitempty"`
	CreatedBy    string     `dynamodbav:"created_by" validate:"required"`
	Watchers     []string   `dynamodbav:"watchers,omitempty"`

	Project  *ProjectDetails  `dynamodbav:"project,omitempty"`
	Routine  *RoutineDetails  `dynamodbav:"routine,omitempty"`
	Assigned *AssignedDetails `dynamodbav:"assigned,omitempty"`
}

func (t *Task) Kind() Kind { return KindTask }

func (t *Task) Scope() Scope { return Scope{Organization: t.Organization, Department: t.Department} }

func (t *Task) Owner() Ref { return NewRef(KindDepartment, t.Department) }

func (t *Task) References() []Reference {
	refs := []Reference{
		{Field: "created_by", Kind: KindUser, IDs: single(t.CreatedBy)},
		{Field: "watchers", Kind: KindUser, IDs: t.Watchers},
	}
	switch {
	case t.Project != nil:
		refs = append(refs, Reference{Field: "vendor", Kind: KindVendor, IDs: single(t.Project.Vendor), MinLive: 1})
	case t.Routine != nil:
		refs = append(refs, Reference{Field: "materials", Kind: KindMaterial, IDs: t.Routine.MaterialIDs, SameDepartment: true})
	case t.Assigned != nil:
		refs = append(refs, Reference{Field: "assignees", Kind: KindUser, IDs: t.Assigned.Assignees, MinLive: 1, SameDepartment: true})
	}
	return refs
}

// SyncMaterialIDs recomputes the routine material id list.
func (t *Task) SyncMaterialIDs() {
	if t.Routine == nil {
		return
	}
	t.Routine.MaterialIDs = materialIDs(t.Routine.Materials)
}

// DetachUser removes a user from watchers and assignees and returns the
// number of references removed.
func (t *Task) DetachUser(userID string) int {
	var n, removed int
	t.Watchers, n = removeID(t.Watchers, userID)
	removed += n
	if t.Assigned != nil {
		t.Assigned.Assignees, n = removeID(t.Assigned.Assignees, userID)
		removed += n
	}
	return removed
}

// DropReferences removes ids from a watcher, assignee or material list.
func (t *Task) DropReferences(field string, ids []string) int {
	var n int
	switch field {
	case "watchers":
		t.Watchers, n = removeIDs(t.Watchers, ids)
	case "assignees":
		if t.Assigned != nil {
			t.Assigned.Assignees, n = removeIDs(t.Assigned.Assignees, ids)
		}
	case "materials":
		if t.Routine != nil {
			t.Routine.Materials, n = dropUsages(t.Routine.Materials, ids)
			t.SyncMaterialIDs()
		}
	}
	return n
}

func (t *Task) isRecord() {}

func materialIDs(usages []MaterialUsage) []string {
	if len(usages) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(usages))
	ids := make([]string, 0, len(usages))
	for _, u := range usages {
		if u.Material == "" || seen[u.Material] {
			continue
		}
		seen[u.Material] = true
		ids = append(ids, u.Material)
	}
	return ids
}
