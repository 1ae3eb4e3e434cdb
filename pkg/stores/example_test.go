package stores_test

import (
	"context"
	"fmt"
	"log"

	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_Put demonstrates storing an entity and recording an edit.
func ExampleSQLiteStore_Put() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	rec, err := store.Put(ctx, "acct-1", entity.Entity{"name": "Acme"})
	if err != nil {
		log.Fatal(err)
	}

	_ = store.AppendAudit(ctx, &stores.AuditEntry{
		EntityID: rec.ID,
		Field:    "name",
		Action:   stores.AuditActionSave,
		NewValue: stores.AuditValue("Acme"),
		Version:  rec.Version,
	})

	entries, _ := store.ListAudit(ctx, stores.AuditFilter{EntityID: rec.ID})
	fmt.Println(rec.Version, len(entries), *entries[0].NewValue)
	// Output: 1 1 "Acme"
}
