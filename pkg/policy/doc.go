// Package policy decides which fields of a descriptions view a subject may
// see and edit, using Open Policy Agent Rego policies.
//
// # Policies
//
// A policy module may define three rules over the PolicyInput document:
//
//	package descriptions.access
//
//	import rego.v1
//
//	hidden contains key if {
//	    some key in input.fields
//	    startswith(key, "billing.")
//	    not "finance" in input.subject.roles
//	}
//
//	readonly contains "status" if input.entity.status == "closed"
//
//	deny contains msg if {
//	    input.operation == "delete"
//	    msg := "fields of this view cannot be deleted"
//	}
//
// Field keys are dotted paths, or "#i" for fields declared without a path.
//
// # Engine
//
// Engine compiles every policy once and merges the rules of all enabled
// policies into a Decision. Apply folds a Decision into field schemas
// before normalization; Authorize guards save and delete operations and
// returns a *DeniedError.
//
// Built-in policies keep identifiers read-only, hide credential-like fields
// from non-admins and make every field read-only for viewers.
//
// # Loading
//
// Loader reads .rego files, JSON policy definitions and *.bundle.json
// bundles. Engine.Watch reloads them through fsnotify when files change;
// a reload that fails to compile keeps the previous policies.
package policy
