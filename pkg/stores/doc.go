// Package stores persists descriptions entities in SQLite.
//
// Entities are stored as JSON documents with a version counter that
// increases on every write. Committed inline edits are recorded in an
// append-only audit table. The schema is managed with golang-migrate from
// embedded migrations.
package stores
