package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		immutableIdentifiersPolicy(),
		secretRedactionPolicy(),
		viewerRestrictionsPolicy(),
	}
}

// immutableIdentifiersPolicy keeps identifier and timestamp fields read-only.
func immutableIdentifiersPolicy() Policy {
	return Policy{
		Name:        "immutable-identifiers",
		Description: "Identifier and audit timestamp fields cannot be edited inline",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"fields", "integrity"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package descriptions.builtin.identifiers

import rego.v1

immutable := {"id", "created_at", "updated_at", "version"}

readonly contains key if {
	some key in input.fields
	immutable[key]
}

readonly contains key if {
	some key in input.fields
	endswith(key, ".id")
}
`,
	}
}

// secretRedactionPolicy hides secret-looking fields from non-admin subjects.
func secretRedactionPolicy() Policy {
	return Policy{
		Name:        "secret-redaction",
		Description: "Fields that look like credentials are hidden unless the subject is an admin",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"fields", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package descriptions.builtin.secrets

import rego.v1

secret_pattern := "(^|\\.)(password|secret|token|api_key|private_key)$"

admin if "admin" in input.subject.roles

hidden contains key if {
	some key in input.fields
	regex.match(secret_pattern, key)
	not admin
}

deny contains violation if {
	input.operation in {"save", "delete"}
	regex.match(secret_pattern, input.field)
	not admin
	violation := {
		"message": sprintf("Field %s can only be changed by an admin", [input.field]),
		"severity": "error",
		"field": input.field,
	}
}
`,
	}
}

// viewerRestrictionsPolicy makes every field read-only for viewers.
func viewerRestrictionsPolicy() Policy {
	return Policy{
		Name:        "viewer-restrictions",
		Description: "Subjects with only the viewer role cannot edit or delete fields",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"roles"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package descriptions.builtin.viewers

import rego.v1

viewer_only if {
	"viewer" in input.subject.roles
	count(input.subject.roles) == 1
}

readonly contains key if {
	viewer_only
	some key in input.fields
}

deny contains violation if {
	viewer_only
	input.operation in {"save", "delete"}
	violation := {
		"message": sprintf("Viewers cannot %s field %s", [input.operation, input.field]),
		"severity": "error",
		"field": input.field,
	}
}
`,
	}
}
