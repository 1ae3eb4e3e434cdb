package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/openfroyo/descriptions/pkg/entity"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: MemoryPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}

	store, err := NewSQLiteStore(Config{Path: MemoryPath, MaxOpenConns: 10})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if store.cfg.MaxOpenConns != 1 {
		t.Errorf("in-memory store should use one connection, got %d", store.cfg.MaxOpenConns)
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "froyo.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("health check should fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	// A second run has nothing to apply.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"entities", "edit_audit"} {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestEntityCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	data := entity.Entity{
		"name":  "Acme",
		"owner": map[string]interface{}{"email": "ops@acme.test"},
		"tags":  []interface{}{"a", "b"},
	}

	// Create
	rec, err := store.Put(ctx, "acct-1", data)
	if err != nil {
		t.Fatalf("failed to put entity: %v", err)
	}
	if rec.Version != 1 {
		t.Errorf("expected version 1, got %d", rec.Version)
	}

	// Read
	got, err := store.Get(ctx, "acct-1")
	if err != nil {
		t.Fatalf("failed to get entity: %v", err)
	}
	if got.Data["name"] != "Acme" {
		t.Errorf("expected name Acme, got %v", got.Data["name"])
	}
	email, ok := entity.Resolve(got.Data, entity.ParsePath("owner.email"))
	if !ok || email != "ops@acme.test" {
		t.Errorf("nested value lost: %v", email)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not populated")
	}

	// Update
	rec, err = store.Put(ctx, "acct-1", entity.Set(got.Data, entity.Path{"name"}, "Acme Corp"))
	if err != nil {
		t.Fatalf("failed to update entity: %v", err)
	}
	if rec.Version != 2 {
		t.Errorf("expected version 2, got %d", rec.Version)
	}
	got, _ = store.Get(ctx, "acct-1")
	if got.Data["name"] != "Acme Corp" || got.Version != 2 {
		t.Errorf("update not stored: %+v", got)
	}

	// List
	if _, err := store.Put(ctx, "acct-0", entity.Entity{"name": "Zero"}); err != nil {
		t.Fatalf("failed to put entity: %v", err)
	}
	list, err := store.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list entities: %v", err)
	}
	if len(list) != 2 || list[0].ID != "acct-0" || list[1].ID != "acct-1" {
		t.Errorf("unexpected list order: %v", list)
	}

	// Delete
	if err := store.Delete(ctx, "acct-1"); err != nil {
		t.Fatalf("failed to delete entity: %v", err)
	}
	if _, err := store.Get(ctx, "acct-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "acct-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPutIfVersion(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		version int64
		wantErr bool
	}{
		{"create requires zero", 0, false},
		{"stale create", 0, true},
		{"matching version", 1, false},
		{"stale version", 1, true},
		{"future version", 9, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.PutIfVersion(ctx, "acct-1", entity.Entity{"n": tt.version}, tt.version)
			if (err != nil) != tt.wantErr {
				t.Fatalf("PutIfVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrVersionConflict) {
				t.Errorf("expected ErrVersionConflict, got %v", err)
			}
		})
	}
}

func TestPutRequiresID(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.Put(context.Background(), "", entity.Entity{}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestAudit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entries := []*AuditEntry{
		{EntityID: "acct-1", View: "account", Field: "name", Action: AuditActionSave, Actor: "alice",
			OldValue: AuditValue("Acme"), NewValue: AuditValue("Acme Corp"), Version: 2},
		{EntityID: "acct-1", View: "account", Field: "note", Action: AuditActionRemove, Actor: "bob",
			OldValue: AuditValue("hello"), Version: 3},
		{EntityID: "acct-2", Action: AuditActionPut, Version: 1},
	}
	for _, e := range entries {
		if err := store.AppendAudit(ctx, e); err != nil {
			t.Fatalf("failed to append audit entry: %v", err)
		}
		if e.ID == 0 {
			t.Error("audit entry ID not set")
		}
	}

	tests := []struct {
		name      string
		filter    AuditFilter
		wantCount int
		wantFirst string
	}{
		{"all", AuditFilter{}, 3, "acct-2"},
		{"by entity", AuditFilter{EntityID: "acct-1"}, 2, "note"},
		{"by action", AuditFilter{Action: AuditActionSave}, 1, "name"},
		{"limit", AuditFilter{EntityID: "acct-1", Limit: 1}, 1, "note"},
		{"offset", AuditFilter{EntityID: "acct-1", Offset: 1}, 1, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListAudit(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAudit() error = %v", err)
			}
			if len(got) != tt.wantCount {
				t.Fatalf("got %d entries, want %d", len(got), tt.wantCount)
			}
			first := got[0].Field
			if first == "" {
				first = got[0].EntityID
			}
			if first != tt.wantFirst {
				t.Errorf("first entry = %s, want %s", first, tt.wantFirst)
			}
		})
	}

	saved, _ := store.ListAudit(ctx, AuditFilter{Action: AuditActionSave})
	if saved[0].NewValue == nil || *saved[0].NewValue != `"Acme Corp"` {
		t.Errorf("unexpected new value: %v", saved[0].NewValue)
	}
	if saved[0].Timestamp.IsZero() {
		t.Error("timestamp not populated")
	}
}

func TestAuditValue(t *testing.T) {
	if AuditValue(nil) != nil {
		t.Error("nil should stay nil")
	}
	if v := AuditValue(map[string]interface{}{"a": 1}); v == nil || *v != `{"a":1}` {
		t.Errorf("unexpected encoding: %v", v)
	}
}

func TestRequestFunc(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "acct-1", entity.Entity{"name": "Acme"}); err != nil {
		t.Fatalf("failed to put entity: %v", err)
	}

	request := RequestFunc(store)

	got, err := request(ctx, map[string]interface{}{IDParam: "acct-1"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if got["name"] != "Acme" {
		t.Errorf("unexpected entity: %v", got)
	}

	if _, err := request(ctx, map[string]interface{}{IDParam: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := request(ctx, nil); err == nil {
		t.Error("expected error without id param")
	}
}

func TestVersionedRequestFunc(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := store.Put(ctx, "acct-1", entity.Entity{"name": "Acme"}); err != nil {
			t.Fatalf("failed to put entity: %v", err)
		}
	}

	var gotID string
	var gotVersion int64
	request := VersionedRequestFunc(store, func(id string, version int64) {
		gotID, gotVersion = id, version
	})

	if _, err := request(ctx, map[string]interface{}{IDParam: "acct-1"}); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if gotID != "acct-1" || gotVersion != 2 {
		t.Errorf("expected acct-1 at version 2, got %s at %d", gotID, gotVersion)
	}
}
