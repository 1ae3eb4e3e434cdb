// Package descriptions assembles the description engine into one
// component.
//
// A Descriptions owns a fetch.Loader for its data source and an
// editable.Controller for inline edits. Render normalizes the column
// schema against the committed entity, dispatches each field to its
// renderer in read or edit mode and partitions the result into body and
// option fields:
//
//	d := descriptions.New(descriptions.Config{
//		Name:     "account",
//		Columns:  columns,
//		Request:  stores.RequestFunc(store),
//		Params:   map[string]interface{}{"id": "acct-1"},
//		Editable: &descriptions.EditableConfig{},
//	})
//	d.Mount(ctx)
//	d.Wait()
//	view := d.Render(ctx)
//
// Configuration, request and policy errors never abort a render pass;
// they are reported in View.Problems, logged, and counted by the
// configured telemetry.
package descriptions
