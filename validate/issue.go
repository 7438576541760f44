package validate

import (
	"fmt"

	"github.com/jacentio/canopy/entity"
)

// Code is a stable machine-readable issue identifier.
type Code string

// Blocking codes.
const (
	CodePlatformOrganization    Code = "PLATFORM_ORGANIZATION"
	CodeLastSuperAdmin          Code = "LAST_SUPER_ADMIN"
	CodeLastHOD                 Code = "LAST_HOD"
	CodeOrganizationDeleted     Code = "ORGANIZATION_DELETED"
	CodeDepartmentDeleted       Code = "DEPARTMENT_DELETED"
	CodeTaskDeleted             Code = "TASK_DELETED"
	CodeActivityDeleted         Code = "ACTIVITY_DELETED"
	CodeParentDeleted           Code = "PARENT_DELETED"
	CodeVendorDeleted           Code = "VENDOR_DELETED"
	CodeNoLiveAssignees         Code = "NO_LIVE_ASSIGNEES"
	CodeNoLiveRecipients        Code = "NO_LIVE_RECIPIENTS"
	CodeVendorInUse             Code = "VENDOR_IN_USE"
	CodeScopeMismatch           Code = "SCOPE_MISMATCH"
	CodeDepartmentMismatch      Code = "DEPARTMENT_MISMATCH"
	CodeDuplicateName           Code = "DUPLICATE_NAME"
	CodeDuplicateEmail          Code = "DUPLICATE_EMAIL"
	CodeDuplicatePhone          Code = "DUPLICATE_PHONE"
	CodeDuplicateHOD            Code = "DUPLICATE_HOD"
	CodeMaxDepthExceeded        Code = "MAX_DEPTH_EXCEEDED"
	CodeNotFound                Code = "NOT_FOUND"
	CodeCommentDepthExceeded    Code = "COMMENT_DEPTH_EXCEEDED"
	CodeInvalidCommentDepth     Code = "INVALID_COMMENT_DEPTH"
	CodeInvalidTaskShape        Code = "INVALID_TASK_SHAPE"
	CodeImmutableTaskType       Code = "IMMUTABLE_TASK_TYPE"
	CodeRoutineTaskActivity     Code = "ROUTINE_TASK_ACTIVITY"
	CodeInvalidField            Code = "INVALID_FIELD"
	CodeInvalidParent           Code = "INVALID_PARENT"
)

// Advisory codes.
const (
	CodeReferenceDeleted         Code = "REFERENCE_DELETED"
	CodeMaterialInUse            Code = "MATERIAL_IN_USE"
	CodeLargeOperation           Code = "LARGE_OPERATION"
	CodeCascadeImpact            Code = "CASCADE_IMPACT"
	CodeTTLExpiringSoon          Code = "TTL_EXPIRING_SOON"
	CodeNotDeleted               Code = "NOT_DELETED"
	CodeRoutineTaskHasActivities Code = "ROUTINE_TASK_HAS_ACTIVITIES"
	CodeAssigneesExhausted       Code = "ASSIGNEES_EXHAUSTED"
)

// Issue is one error or warning about a proposed operation.
type Issue struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Entity  string         `json:"entity,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// NewIssue builds an issue about ref.
func NewIssue(code Code, ref entity.Ref, format string, args ...any) Issue {
	return Issue{Code: code, Message: fmt.Sprintf(format, args...), Entity: ref.String()}
}

// WithField sets the offending field.
func (i Issue) WithField(field string) Issue {
	i.Field = field
	return i
}

// WithMeta adds kind-specific metadata.
func (i Issue) WithMeta(key string, value any) Issue {
	if i.Meta == nil {
		i.Meta = make(map[string]any)
	}
	i.Meta[key] = value
	return i
}

func (i Issue) String() string {
	if i.Entity == "" {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", i.Code, i.Message, i.Entity)
}

// Report is the outcome of a precondition check. Errors block the operation
// unless they are informational (Meta "blocking": false); warnings never do.
type Report struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

func newReport() Report {
	return Report{Valid: true}
}

func (r *Report) fail(i Issue) {
	r.Valid = false
	r.Errors = append(r.Errors, i)
}

// inform records an error that does not invalidate the report.
func (r *Report) inform(i Issue) {
	r.Errors = append(r.Errors, i.WithMeta("blocking", false))
}

func (r *Report) warn(i Issue) {
	r.Warnings = append(r.Warnings, i)
}

// HasCode reports whether any error or warning carries code.
func (r Report) HasCode(code Code) bool {
	for _, list := range [][]Issue{r.Errors, r.Warnings} {
		for _, i := range list {
			if i.Code == code {
				return true
			}
		}
	}
	return false
}
