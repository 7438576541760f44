package cascade

import (
	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/validate"
)

// DefaultMaxDepth bounds the ownership walk.
const DefaultMaxDepth = 10

// Options tune one cascade call.
type Options struct {
	// SkipValidation disables precondition checks at every node.
	SkipValidation bool

	// Force lets a delete proceed past blocking errors. The errors are still
	// reported. Restores ignore it.
	Force bool

	// Depth is the starting depth of the root.
	Depth int

	// MaxDepth aborts any branch reaching it (default DefaultMaxDepth).
	MaxDepth int
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Depth < 0 {
		o.Depth = 0
	}
	return o
}

// Result aggregates the outcome of a cascade over every branch.
type Result struct {
	// OperationID identifies the call in logs.
	OperationID string `json:"operation_id"`

	// Success is true when the root itself was transitioned (or already was
	// in the target state).
	Success bool `json:"success"`

	// AffectedCount is the number of records whose tombstone state changed.
	AffectedCount int `json:"affected_count"`

	// Affected lists the changed records in walk order.
	Affected []string `json:"affected,omitempty"`

	// DetachedReferences counts user ids removed from live referencing records.
	DetachedReferences int `json:"detached_references"`

	// DroppedReferences counts dead ids removed from restored records.
	DroppedReferences int `json:"dropped_references"`

	Warnings []validate.Issue `json:"warnings,omitempty"`
	Errors   []validate.Issue `json:"errors,omitempty"`
}

// HasError reports whether an error with code was reported.
func (r Result) HasError(code validate.Code) bool {
	for _, i := range r.Errors {
		if i.Code == code {
			return true
		}
	}
	return false
}

// HasWarning reports whether a warning with code was reported.
func (r Result) HasWarning(code validate.Code) bool {
	for _, i := range r.Warnings {
		if i.Code == code {
			return true
		}
	}
	return false
}

func (r *Result) affected(ref entity.Ref) {
	r.AffectedCount++
	r.Affected = append(r.Affected, ref.String())
}
