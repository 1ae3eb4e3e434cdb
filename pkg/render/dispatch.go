package render

import (
	"fmt"

	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/schema"
)

// ActionKind names an inline edit action.
type ActionKind string

const (
	ActionSave   ActionKind = "save"
	ActionCancel ActionKind = "cancel"
	ActionDelete ActionKind = "delete"
)

// Action is one button of an edit action group.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Key   entity.Key `json:"key"`
	Label string     `json:"label"`
}

// EditState is the part of the editable controller the dispatcher reads.
type EditState interface {
	IsEditing(key entity.Key) bool
}

// FormState is the part of the form provider the dispatcher reads.
type FormState interface {
	Value(key entity.Key) (interface{}, bool)
}

// Context carries the per-pass collaborators of Dispatch. Both fields are
// optional; without an EditState no field is editable.
type Context struct {
	Entity   entity.Entity
	Editable EditState
	Form     FormState
}

// Contract tells the caller how to present one field.
type Contract struct {
	Key       entity.Key       `json:"key"`
	Index     int              `json:"index"`
	Title     string           `json:"title"`
	Tooltip   string           `json:"tooltip,omitempty"`
	Mode      schema.Mode      `json:"mode"`
	ValueType schema.ValueType `json:"valueType"`
	Value     interface{}      `json:"value"`
	IsOption  bool             `json:"isOption,omitempty"`
	Span      int              `json:"span,omitempty"`

	// IgnoreFormItem is set for read contracts: no editor is mounted.
	IgnoreFormItem bool `json:"ignoreFormItem"`

	// Edit mode only.
	InitialValue interface{} `json:"initialValue,omitempty"`
	CurrentValue interface{} `json:"currentValue,omitempty"`
	Actions      []Action    `json:"actions,omitempty"`

	ShowEditAffordance bool `json:"showEditAffordance"`

	ValueEnum schema.ValueEnum       `json:"valueEnum,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`

	RenderOverride   schema.RenderFunc   `json:"-"`
	FormItemOverride schema.FormItemFunc `json:"-"`
	Entity           entity.Entity       `json:"-"`
	Plain            bool                `json:"-"`
}

// Option reports whether the contract belongs to the options area.
func (c Contract) Option() bool { return c.IsOption }

// Dispatcher binds resolved fields to render contracts.
type Dispatcher struct {
	Registry *Registry

	// ShowDelete adds a delete action to edit contracts.
	ShowDelete bool

	SaveText   string
	CancelText string
	DeleteText string
}

// NewDispatcher returns a dispatcher using reg, or the built-in registry
// when reg is nil.
func NewDispatcher(reg *Registry) *Dispatcher {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Dispatcher{
		Registry:   reg,
		SaveText:   "Save",
		CancelText: "Cancel",
		DeleteText: "Delete",
	}
}

// Dispatch decides the mode of f and builds its contract.
//
// The explicit schema mode wins; otherwise a field is in edit mode while
// the controller reports it as editing. Option fields are always read.
func (d *Dispatcher) Dispatch(f schema.ResolvedField, rc Context) Contract {
	sch := f.Schema
	if sch == nil {
		sch = &schema.FieldSchema{}
	}

	mode := sch.Mode
	if mode == "" {
		mode = schema.ModeRead
		if rc.Editable != nil && rc.Editable.IsEditing(f.Key) {
			mode = schema.ModeEdit
		}
	}
	if f.IsOption {
		mode = schema.ModeRead
	}

	c := Contract{
		Key:            f.Key,
		Index:          f.Index,
		Title:          f.Title,
		Tooltip:        sch.Tooltip,
		Mode:           mode,
		ValueType:      f.ValueType,
		Value:          f.Value,
		IsOption:       f.IsOption,
		Span:           sch.Span,
		ValueEnum:      sch.ValueEnum,
		Params:         sch.Params,
		RenderOverride: sch.Render,
		Entity:         rc.Entity,
		Plain:          sch.Plain,
	}

	if mode == schema.ModeRead {
		c.IgnoreFormItem = true
		c.ShowEditAffordance = rc.Editable != nil && !f.IsOption &&
			sch.EditableFor(f.Value, rc.Entity, f.Index)
		return c
	}

	c.InitialValue = f.Value
	c.CurrentValue = f.Value
	if rc.Form != nil {
		if v, ok := rc.Form.Value(f.Key); ok {
			c.CurrentValue = v
		}
	}
	c.FormItemOverride = sch.RenderFormItem
	if rc.Editable != nil {
		c.Actions = d.actions(f.Key)
	}
	return c
}

func (d *Dispatcher) actions(key entity.Key) []Action {
	out := []Action{
		{Kind: ActionSave, Key: key, Label: d.SaveText},
		{Kind: ActionCancel, Key: key, Label: d.CancelText},
	}
	if d.ShowDelete {
		out = append(out, Action{Kind: ActionDelete, Key: key, Label: d.DeleteText})
	}
	return out
}

// Execute runs the registered renderer (or the contract's overrides) for c.
// A panicking renderer is contained: the field degrades to raw text and a
// ConfigurationError is returned.
func (d *Dispatcher) Execute(c Contract) (p Presentation, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = Presentation{Text: Stringify(c.Value)}
			err = &schema.ConfigurationError{
				Key:       c.Key,
				Index:     c.Index,
				ValueType: c.ValueType,
				Reason:    "renderer failed",
				Err:       fmt.Errorf("panic: %v", r),
			}
		}
	}()

	renderer := d.Registry.Resolve(c.ValueType)
	fc := FieldContext{
		Key:       c.Key,
		ValueType: c.ValueType,
		ValueEnum: c.ValueEnum,
		Entity:    c.Entity,
		Plain:     c.Plain,
	}

	if c.Mode == schema.ModeEdit {
		if c.FormItemOverride != nil {
			return toPresentation(c.FormItemOverride(c.CurrentValue, c.Entity, c.Index)), nil
		}
		return renderer.RenderFormItem(c.CurrentValue, fc), nil
	}

	p = renderer.Render(c.Value, fc)
	if c.RenderOverride != nil {
		p = toPresentation(c.RenderOverride(p, c.Value, c.Entity, c.Index))
	}
	return p, nil
}

func toPresentation(v interface{}) Presentation {
	switch t := v.(type) {
	case Presentation:
		return t
	case *Presentation:
		if t != nil {
			return *t
		}
		return Presentation{Text: EmptyText}
	default:
		return Presentation{Text: Stringify(v)}
	}
}
