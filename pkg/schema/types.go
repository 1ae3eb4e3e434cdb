package schema

import (
	"context"

	"github.com/openfroyo/descriptions/pkg/entity"
)

// ValueType is the tag that selects a renderer for a field.
type ValueType string

// Built-in value types.
const (
	ValueTypeText        ValueType = "text"
	ValueTypePassword    ValueType = "password"
	ValueTypeTextarea    ValueType = "textarea"
	ValueTypeCode        ValueType = "code"
	ValueTypeJSONCode    ValueType = "jsonCode"
	ValueTypeMoney       ValueType = "money"
	ValueTypeDigit       ValueType = "digit"
	ValueTypePercent     ValueType = "percent"
	ValueTypeProgress    ValueType = "progress"
	ValueTypeDate        ValueType = "date"
	ValueTypeDateTime    ValueType = "dateTime"
	ValueTypeTime        ValueType = "time"
	ValueTypeFromNow     ValueType = "fromNow"
	ValueTypeSelect      ValueType = "select"
	ValueTypeRadio       ValueType = "radio"
	ValueTypeCheckbox    ValueType = "checkbox"
	ValueTypeSwitch      ValueType = "switch"
	ValueTypeRate        ValueType = "rate"
	ValueTypeColor       ValueType = "color"
	ValueTypeImage       ValueType = "image"
	ValueTypeAvatar      ValueType = "avatar"
	ValueTypeLink        ValueType = "link"
	ValueTypeOption      ValueType = "option"
	ValueTypeIndex       ValueType = "index"
	ValueTypeIndexBorder ValueType = "indexBorder"
)

// IsStructural reports whether t only makes sense in tabular layouts.
// Structural fields are dropped during normalization.
func (t ValueType) IsStructural() bool {
	return t == ValueTypeIndex || t == ValueTypeIndexBorder
}

// Mode is the presentation mode of a field.
type Mode string

const (
	ModeRead Mode = "read"
	ModeEdit Mode = "edit"
)

// Validate reports whether m is a known mode. The zero value means "unset".
func (m Mode) Validate() bool {
	switch m {
	case "", ModeRead, ModeEdit:
		return true
	default:
		return false
	}
}

// EnumItem is one entry of a value enum.
type EnumItem struct {
	Text   string `json:"text" yaml:"text"`
	Status string `json:"status,omitempty" yaml:"status,omitempty"`
}

// ValueEnum maps raw values (stringified) to display entries.
type ValueEnum map[string]EnumItem

// Actions is the imperative surface handed to field callbacks.
type Actions interface {
	Reload(ctx context.Context) error
	SetDataSource(e entity.Entity)
	StartEditable(key entity.Key) error
	Cancel(key entity.Key) error
	Save(ctx context.Context, key entity.Key) error
	Delete(ctx context.Context, key entity.Key) error
}

// Callback signatures for function-valued schema properties. index is the
// field's declaration position.
type (
	TitleFunc      func(field *FieldSchema) string
	ValueTypeFunc  func(e entity.Entity) ValueType
	EditableFunc   func(value interface{}, e entity.Entity, index int) bool
	RenderTextFunc func(value interface{}, e entity.Entity, index int, actions Actions) interface{}

	// RenderFunc replaces the default presentation. dom is what the
	// registered renderer produced.
	RenderFunc func(dom interface{}, value interface{}, e entity.Entity, index int) interface{}

	// FormItemFunc replaces the registry's default editor.
	FormItemFunc func(value interface{}, e entity.Entity, index int) interface{}

	// EnumRequest loads a value enum for select-like fields.
	EnumRequest func(ctx context.Context, params map[string]interface{}) (ValueEnum, error)
)

// FieldSchema is one declarative entry of a descriptions schema.
type FieldSchema struct {
	// Path addresses the value. Fields without a path are keyed by
	// position and display Children.
	Path entity.Path

	Title     string
	TitleFunc TitleFunc
	Tooltip   string

	// Order sorts fields descending. Zero means unset.
	Order int

	ValueType     ValueType
	ValueTypeFunc ValueTypeFunc

	Hide bool

	// Editable false disables inline editing; EditableFunc can refine it
	// per value.
	Editable     *bool
	EditableFunc EditableFunc

	Mode Mode

	Render         RenderFunc
	RenderFormItem FormItemFunc
	RenderText     RenderTextFunc

	// Children is the literal shown when Path resolves to nothing.
	Children interface{}

	ValueEnum ValueEnum
	Request   EnumRequest
	Params    map[string]interface{}

	// Rules are go-playground/validator tags applied to edited values.
	Rules string

	Span     int
	Copyable bool
	Ellipsis bool
	Plain    bool
}

// Key returns the field's identity for a given declaration index.
func (f *FieldSchema) Key(index int) entity.Key {
	if f.Path.IsZero() {
		return entity.IndexKey(index)
	}
	return entity.NameKey(f.Path)
}

// ResolveTitle returns TitleFunc's result when set, otherwise Title.
func (f *FieldSchema) ResolveTitle() string {
	if f.TitleFunc != nil {
		return f.TitleFunc(f)
	}
	return f.Title
}

// ResolveValueType evaluates ValueTypeFunc against e when set, otherwise
// the literal, defaulting to text.
func (f *FieldSchema) ResolveValueType(e entity.Entity) ValueType {
	if f.ValueTypeFunc != nil {
		if vt := f.ValueTypeFunc(e); vt != "" {
			return vt
		}
	}
	if f.ValueType != "" {
		return f.ValueType
	}
	return ValueTypeText
}

// EditableFor reports whether the field permits inline editing for value.
func (f *FieldSchema) EditableFor(value interface{}, e entity.Entity, index int) bool {
	if f.Editable != nil && !*f.Editable {
		return false
	}
	if f.EditableFunc != nil && !f.EditableFunc(value, e, index) {
		return false
	}
	return true
}

// Bool returns a pointer to b, for FieldSchema.Editable literals.
func Bool(b bool) *bool { return &b }

// ResolvedField is a schema entry bound to a concrete entity.
type ResolvedField struct {
	Key       entity.Key
	Path      entity.Path
	Index     int
	Title     string
	Value     interface{}
	ValueType ValueType
	Order     int
	Visible   bool
	IsOption  bool

	Schema *FieldSchema
}

// Option reports whether the field belongs to the options area.
func (f ResolvedField) Option() bool { return f.IsOption }
