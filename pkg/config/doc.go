// Package config loads descriptions view schemas from CUE, JSON and YAML
// files.
//
// # Overview
//
// A schema file declares one view: its title, edit type and ordered
// columns. Files are validated against the built-in #Descriptions CUE
// definition and go-playground/validator struct tags, then compiled into
// schema.FieldSchema values.
//
// # Components
//
// Parser: Parses a file, a directory of files or inline CUE. Problems are
// collected in ParsedView.Errors with file, line and path.
//
// SchemaRegistry: Holds the CUE definitions documents are unified with.
//
// StarlarkEvaluator: Evaluates the Starlark expressions of function-valued
// column properties, bounded by a timeout and an execution step limit.
//
// Compiler: Binds a ParsedView to field schemas.
//
// Watcher: Reports schema file changes, debounced, via fsnotify.
//
// # Schema Structure
//
//	name: account
//	title: Account
//	edit_type: single
//	columns:
//	  - path: owner.name
//	    title: Owner
//	    rules: required
//	  - path: balance
//	    title: Balance
//	    value_type: money
//	    editable: false
//	  - path: status
//	    value_type: select
//	    value_enum:
//	      open: {text: Open, status: success}
//	      closed: {text: Closed, status: default}
//	  - title: Actions
//	    value_type: option
//	    children: [edit, archive]
//
// # Expressions
//
// Four column properties take Starlark expressions:
//
//   - value_type_expr: entity is bound; yields a value type name
//   - editable_expr: value, entity and index are bound; truthiness decides
//   - render_text_expr: value, entity and index are bound; yields the display value
//   - title_expr: title, tooltip and path are bound; yields the title
//
// An expression that fails at render time is logged and the column falls
// back to its literal property.
//
// # Errors
//
//	ValidationError{
//	    File:     "views/account.yaml",
//	    Line:     12,
//	    Column:   11,
//	    Path:     "columns.1.mode",
//	    Message:  "columns.1.mode: 2 errors in empty disjunction",
//	    Severity: "error",
//	}
//
// # Thread Safety
//
// A Parser is not safe for concurrent use. Compiled views and the
// StarlarkEvaluator are.
package config
