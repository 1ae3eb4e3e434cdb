// Package editable implements the per-field inline edit state machine.
//
// Every field starts in read state. StartEditable moves it to editing,
// Cancel returns it to read without touching the data source, Save
// validates the in-progress value and commits it, and Delete removes the
// field's value from the data source:
//
//	Read --StartEditable--> Editing
//	Editing --Cancel--> Read
//	Editing --Save (valid)--> Read, entity committed
//	Editing --Save (invalid)--> Editing, ValidationError returned
//	Editing --Delete--> Read, value removed
//
// A Controller never writes to the entity directly; commits go through the
// Source's SetDataSource so the owner of the data decides what a commit
// means.
package editable
