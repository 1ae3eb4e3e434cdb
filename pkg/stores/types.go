package stores

import (
	"context"
	"errors"
	"time"

	"github.com/openfroyo/descriptions/pkg/entity"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict is returned by PutIfVersion when the stored version
// moved on.
var ErrVersionConflict = errors.New("entity version conflict")

// AuditAction names an audited change.
type AuditAction string

const (
	AuditActionPut    AuditAction = "entity.put"
	AuditActionDelete AuditAction = "entity.delete"
	AuditActionSave   AuditAction = "field.save"
	AuditActionRemove AuditAction = "field.delete"
)

// Record is a stored entity.
type Record struct {
	ID        string        `json:"id"`
	Data      entity.Entity `json:"data"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AuditEntry records one committed edit.
type AuditEntry struct {
	ID       int64       `json:"id"`
	EntityID string      `json:"entity_id"`
	View     string      `json:"view,omitempty"`
	Field    string      `json:"field,omitempty"`
	Action   AuditAction `json:"action"`
	Actor    string      `json:"actor,omitempty"`
	OldValue *string     `json:"old_value,omitempty"` // JSON
	NewValue *string     `json:"new_value,omitempty"` // JSON
	Version  int64       `json:"version"`

	Timestamp time.Time `json:"timestamp"`
}

// AuditFilter narrows ListAudit.
type AuditFilter struct {
	EntityID string
	Action   AuditAction
	Limit    int
	Offset   int
}

// Store persists entities and their edit history.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Entity operations
	Put(ctx context.Context, id string, data entity.Entity) (*Record, error)
	PutIfVersion(ctx context.Context, id string, data entity.Entity, version int64) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit, offset int) ([]*Record, error)
	Delete(ctx context.Context, id string) error

	// Audit operations
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
