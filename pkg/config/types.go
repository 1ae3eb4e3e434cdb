package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/descriptions/pkg/schema"
)

// ViewConfig is a descriptions view declared in a schema file.
type ViewConfig struct {
	// Name identifies the view (e.g., "account"). Defaults to the file's
	// base name.
	Name string `json:"name" yaml:"name" validate:"required"`

	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	Tooltip string `json:"tooltip,omitempty" yaml:"tooltip,omitempty"`

	// EditType is single or multiple.
	EditType string `json:"edit_type,omitempty" yaml:"edit_type,omitempty" validate:"omitempty,oneof=single multiple"`

	// Manual suppresses the automatic fetch on mount.
	Manual bool `json:"manual,omitempty" yaml:"manual,omitempty"`

	// Params are passed to the request function.
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`

	Columns []ColumnConfig `json:"columns" yaml:"columns" validate:"dive"`
}

// ColumnConfig is one field of a view.
type ColumnConfig struct {
	// Path is the dotted path of the value (e.g., "owner.name").
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	Tooltip string `json:"tooltip,omitempty" yaml:"tooltip,omitempty"`
	Order   int    `json:"order,omitempty" yaml:"order,omitempty"`

	ValueType string `json:"value_type,omitempty" yaml:"value_type,omitempty"`
	Hide      bool   `json:"hide,omitempty" yaml:"hide,omitempty"`
	Editable  *bool  `json:"editable,omitempty" yaml:"editable,omitempty"`
	Mode      string `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=read edit"`

	// Children is shown when the path resolves to nothing.
	Children interface{} `json:"children,omitempty" yaml:"children,omitempty"`

	ValueEnum schema.ValueEnum      `json:"value_enum,omitempty" yaml:"value_enum,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`

	// Rules are validator tags applied to edited values (e.g., "required,email").
	Rules string `json:"rules,omitempty" yaml:"rules,omitempty"`

	Span     int  `json:"span,omitempty" yaml:"span,omitempty" validate:"gte=0"`
	Copyable bool `json:"copyable,omitempty" yaml:"copyable,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty" yaml:"ellipsis,omitempty"`
	Plain    bool `json:"plain,omitempty" yaml:"plain,omitempty"`

	// Starlark expressions for function-valued properties.
	ValueTypeExpr  string `json:"value_type_expr,omitempty" yaml:"value_type_expr,omitempty"`
	EditableExpr   string `json:"editable_expr,omitempty" yaml:"editable_expr,omitempty"`
	RenderTextExpr string `json:"render_text_expr,omitempty" yaml:"render_text_expr,omitempty"`
	TitleExpr      string `json:"title_expr,omitempty" yaml:"title_expr,omitempty"`
}

// ParsedView is the result of parsing one schema source.
type ParsedView struct {
	View ViewConfig `json:"view"`

	// SourceFile is the parsed file, or "inline".
	SourceFile string `json:"source_file"`

	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists validation errors. View is only usable when empty.
	Errors []ValidationError `json:"errors,omitempty"`
}

// Valid reports whether the view parsed without errors.
func (pv *ParsedView) Valid() bool {
	return len(pv.Errors) == 0
}

// Err returns the validation errors as a single error, or nil.
func (pv *ParsedView) Err() error {
	if pv.Valid() {
		return nil
	}
	return ValidationErrors(pv.Errors)
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the document path to the error (e.g., "columns.2.mode").
	Path string `json:"path,omitempty"`

	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

func (ve ValidationError) Error() string {
	var b strings.Builder
	if ve.File != "" {
		b.WriteString(ve.File)
		if ve.Line > 0 {
			fmt.Fprintf(&b, ":%d", ve.Line)
			if ve.Column > 0 {
				fmt.Fprintf(&b, ":%d", ve.Column)
			}
		}
		b.WriteString(": ")
	}
	if ve.Path != "" {
		b.WriteString(ve.Path)
		b.WriteString(": ")
	}
	b.WriteString(ve.Message)
	return b.String()
}

// ValidationErrors is a list of validation errors.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	msgs := make([]string, len(ve))
	for i, e := range ve {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// StarlarkResult represents the result of evaluating one expression.
type StarlarkResult struct {
	Value interface{} `json:"value,omitempty"`

	ExecutionTime time.Duration `json:"execution_time"`

	Error string `json:"error,omitempty"`
}
