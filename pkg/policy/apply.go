package policy

import (
	"github.com/openfroyo/descriptions/pkg/schema"
)

// FieldKeys returns the keys of items as policy input strings: dotted
// paths, or "#i" for positional fields.
func FieldKeys(items []schema.FieldSchema) []string {
	keys := make([]string, len(items))
	for i := range items {
		keys[i] = items[i].Key(i).String()
	}
	return keys
}

// Apply returns a copy of items with the decision applied: hidden fields
// get Hide set and read-only fields get Editable false. items is not
// modified.
func Apply(items []schema.FieldSchema, d *Decision) []schema.FieldSchema {
	out := make([]schema.FieldSchema, len(items))
	copy(out, items)
	if d == nil {
		return out
	}

	for i := range out {
		key := out[i].Key(i).String()
		if d.IsHidden(key) {
			out[i].Hide = true
		}
		if d.IsReadOnly(key) {
			out[i].Editable = schema.Bool(false)
		}
	}
	return out
}
