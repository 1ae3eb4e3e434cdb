// Package schema turns a declarative descriptions schema into an ordered
// list of fields bound to one entity.
//
// A FieldSchema names where a value lives (Path), how it is labelled
// (Title, TitleFunc) and which renderer shows it (ValueType or
// ValueTypeFunc). Normalize resolves each entry against an entity:
//
//	fields, err := schema.Normalize(items, e, schema.WithRegistry(reg))
//	for _, f := range fields {
//	    fmt.Println(f.Key, f.Title, f.Value)
//	}
//
// Hidden entries and the table-only index types are dropped. Entries are
// sorted by Order descending; entries without an order fall back to their
// declaration position, later entries first.
//
// Configuration problems never abort normalization. An unregistered value
// type or a duplicated path is reported as a ConfigurationError and the
// entry is still returned, rendered as plain text.
package schema
