package commands

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/descriptions/pkg/stores"
)

func newSeedCommand() *cobra.Command {
	var (
		dbPath string
		id     string
	)

	cmd := &cobra.Command{
		Use:   "seed <entity.json>",
		Short: "Store an entity in the database",
		Long: `Store an entity in the database served by 'froyo-desc serve'.

The entity id is taken from --id, or from the entity's "id" field.`,
		Example: `  froyo-desc seed acct.json --db descriptions.db --id acct-1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			data, err := readEntity(args[0])
			if err != nil {
				return err
			}
			if id == "" {
				if v, ok := data["id"]; ok {
					id = fmt.Sprint(v)
				}
			}
			if id == "" {
				return fmt.Errorf("entity id is required: pass --id or set an id field")
			}

			store, err := openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Put(ctx, id, data)
			if err != nil {
				return err
			}
			if err := store.AppendAudit(ctx, &stores.AuditEntry{
				EntityID: id,
				Action:   stores.AuditActionPut,
				Actor:    "cli",
				NewValue: stores.AuditValue(data),
				Version:  rec.Version,
			}); err != nil {
				log.Warn().Err(err).Msg("Failed to record audit entry")
			}

			log.Info().Str("id", id).Int64("version", rec.Version).Msg("Entity stored")
			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %d\n", rec.ID, rec.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "descriptions.db", "SQLite database path")
	cmd.Flags().StringVar(&id, "id", "", "entity id")

	return cmd
}
