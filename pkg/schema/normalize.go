package schema

import (
	"errors"
	"sort"

	"github.com/openfroyo/descriptions/pkg/entity"
)

// Lookup reports whether a renderer is registered for a value type.
type Lookup interface {
	Has(vt ValueType) bool
}

type normalizeOptions struct {
	lookup        Lookup
	actions       Actions
	includeHidden bool
}

// Option configures Normalize.
type Option func(*normalizeOptions)

// WithRegistry validates every resolved value type against l. Unknown
// types produce a ConfigurationError and degrade to text.
func WithRegistry(l Lookup) Option {
	return func(o *normalizeOptions) { o.lookup = l }
}

// WithActions passes the imperative handle to RenderText callbacks.
func WithActions(a Actions) Option {
	return func(o *normalizeOptions) { o.actions = a }
}

// WithHidden keeps Hide entries in the result with Visible set to false.
// Structural entries are still dropped.
func WithHidden() Option {
	return func(o *normalizeOptions) { o.includeHidden = true }
}

// Normalize binds items to e and returns the ordered field list.
//
// Fields are ordered by Order descending, then by declaration position
// descending. A schema without orders therefore renders in reverse
// declaration order.
//
// The returned error joins every ConfigurationError found; the field slice
// is complete regardless.
func Normalize(items []FieldSchema, e entity.Entity, opts ...Option) ([]ResolvedField, error) {
	var o normalizeOptions
	for _, opt := range opts {
		opt(&o)
	}

	fields := make([]ResolvedField, 0, len(items))
	seen := make(map[entity.Key]bool, len(items))
	var errs []error

	for i := range items {
		item := &items[i]

		vt := item.ResolveValueType(e)
		if vt.IsStructural() {
			continue
		}
		if item.Hide && !o.includeHidden {
			continue
		}

		key := item.Key(i)
		if seen[key] {
			errs = append(errs, &ConfigurationError{
				Key:       key,
				Index:     i,
				ValueType: vt,
				Reason:    "path declared more than once, keyed by position",
				Err:       ErrDuplicatePath,
			})
			key = entity.IndexKey(i)
		}
		seen[key] = true

		if o.lookup != nil && !o.lookup.Has(vt) {
			errs = append(errs, &ConfigurationError{
				Key:       key,
				Index:     i,
				ValueType: vt,
				Reason:    "no renderer registered for value type " + string(vt),
				Err:       ErrUnknownValueType,
			})
			vt = ValueTypeText
		}

		value := displayValue(item, e)
		if item.RenderText != nil {
			value = item.RenderText(value, e, i, o.actions)
		}

		fields = append(fields, ResolvedField{
			Key:       key,
			Path:      item.Path,
			Index:     i,
			Title:     item.ResolveTitle(),
			Value:     value,
			ValueType: vt,
			Order:     item.Order,
			Visible:   !item.Hide,
			IsOption:  vt == ValueTypeOption,
			Schema:    item,
		})
	}

	sort.SliceStable(fields, func(a, b int) bool {
		fa, fb := fields[a], fields[b]
		if fa.Order != fb.Order {
			return fa.Order > fb.Order
		}
		return fa.Index > fb.Index
	})

	return fields, errors.Join(errs...)
}

func displayValue(item *FieldSchema, e entity.Entity) interface{} {
	if item.Path.IsZero() {
		return item.Children
	}
	v, ok := entity.Resolve(e, item.Path)
	if !ok || v == nil {
		return item.Children
	}
	return v
}

// Validate checks items against l without binding an entity. Function
// valued types are only checked when they return a value for an empty
// entity.
func Validate(items []FieldSchema, l Lookup) error {
	_, err := Normalize(items, entity.Entity{}, WithRegistry(l), WithHidden())
	return err
}
