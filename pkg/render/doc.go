// Package render decides how each resolved field is presented.
//
// A Registry maps value types to Renderers. The built-in renderers only
// produce plain-text Presentations with a widget hint; callers that paint
// real widgets register their own.
//
// Dispatcher.Dispatch turns a schema.ResolvedField into a Contract. The
// contract carries the mode (read or edit), the value, the initial value
// and current form value for editors, the inline save/cancel/delete
// actions and whether an edit affordance should be offered. Execute then
// runs the renderer for a contract and contains renderer panics so one
// bad field never takes down the whole view.
package render
