package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Operation is what the subject is doing with the view.
type Operation string

const (
	OperationRender Operation = "render"
	OperationSave   Operation = "save"
	OperationDelete Operation = "delete"
)

// Policy represents a field access rule with its Rego code.
//
// A policy module may define any of three rules:
//
//	hidden contains path if { ... }    # field paths removed from the view
//	readonly contains path if { ... }  # field paths that cannot be edited
//	deny contains violation if { ... } # blocks save and delete operations
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for deny violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	Tags     []string               `json:"tags,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subject is the caller a view is rendered for.
type Subject struct {
	User  string   `json:"user,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// PolicyInput represents the input data for policy evaluation.
type PolicyInput struct {
	View     string                 `json:"view"`
	EntityID string                 `json:"entity_id,omitempty"`
	Entity   map[string]interface{} `json:"entity,omitempty"`

	Subject Subject `json:"subject"`

	Operation Operation `json:"operation"`

	// Field and Value are set for save and delete.
	Field string      `json:"field,omitempty"`
	Value interface{} `json:"value,omitempty"`

	// Fields lists the keys of the view's fields.
	Fields []string `json:"fields,omitempty"`

	Context *PolicyContext `json:"context,omitempty"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// Environment is the environment (e.g., "production", "staging").
	Environment string `json:"environment,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PolicyViolation represents a single deny result.
type PolicyViolation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Field is the field key the violation concerns, if any.
	Field string `json:"field,omitempty"`

	Message  string   `json:"message"`
	Severity Severity `json:"severity"`

	DetectedAt time.Time `json:"detected_at"`
}

// Decision is the combined result of all enabled policies.
type Decision struct {
	// Allowed is false when a deny violation of error severity or above
	// was produced.
	Allowed bool `json:"allowed"`

	// Hidden and ReadOnly list field keys, sorted and deduplicated.
	Hidden   []string `json:"hidden,omitempty"`
	ReadOnly []string `json:"read_only,omitempty"`

	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// IsHidden reports whether key is hidden by the decision.
func (d *Decision) IsHidden(key string) bool {
	return contains(d.Hidden, key)
}

// IsReadOnly reports whether key is read-only by the decision.
func (d *Decision) IsReadOnly(key string) bool {
	return contains(d.ReadOnly, key)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PolicyBundle represents a collection of related policies.
type PolicyBundle struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Policies    []Policy  `json:"policies"`
	CreatedAt   time.Time `json:"created_at"`
}
