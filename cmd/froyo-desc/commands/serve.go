package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/descriptions/pkg/policy"
	"github.com/openfroyo/descriptions/pkg/server"
	"github.com/openfroyo/descriptions/pkg/stores"
	"github.com/openfroyo/descriptions/pkg/telemetry"
)

func newServeCommand(version string) *cobra.Command {
	var (
		dbPath        string
		schemaDir     string
		addr          string
		watch         bool
		policies      []string
		idleTimeout   time.Duration
		logFormat     string
		traceExporter string
		otlpEndpoint  string
		profile       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve views of stored entities over HTTP",
		Long: `Serve the views of a schema directory over HTTP.

Entities are stored in SQLite. Each request renders a view of one entity
for the subject named by the X-User and X-Roles headers; field edits are
validated, checked against policies, and written back with optimistic
versioning. Clients may follow a view over a websocket.`,
		Example: `  # Serve ./schemas with a local database
  froyo-desc serve --db descriptions.db --schemas ./schemas

  # Reload schemas and policies on change, export traces over OTLP
  froyo-desc serve --watch --policies ./policies --trace-exporter otlp --otlp-endpoint localhost:4317

  # JSON logs and sampled OTLP traces
  froyo-desc serve --profile production --otlp-endpoint collector:4317`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := telemetryConfig(profile)
			if err != nil {
				return err
			}
			cfg.ServiceVersion = version
			cfg.Tracing.Endpoint = otlpEndpoint
			if cmd.Flags().Changed("log-format") {
				cfg.Logging.Format = logFormat
			}
			if verbose {
				cfg.Logging.Level = "debug"
			}
			if cmd.Flags().Changed("trace-exporter") {
				cfg.Tracing.Enabled = traceExporter != "none"
				cfg.Tracing.Exporter = traceExporter
			}
			tel, err := telemetry.NewTelemetry(cfg)
			if err != nil {
				return fmt.Errorf("failed to set up telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Telemetry shutdown failed")
				}
			}()
			logger := tel.Logger.Zerolog()

			store, err := openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			srvCfg := server.Config{
				Addr:         addr,
				SchemaDir:    schemaDir,
				WatchSchemas: watch,
				Store:        store,
				Telemetry:    tel,
				Logger:       logger,
				IdleTimeout:  idleTimeout,
			}
			if len(policies) > 0 {
				engine, err := policy.NewEngine(logger)
				if err != nil {
					return err
				}
				if watch {
					loader, err := engine.Watch(ctx, policies)
					if err != nil {
						return err
					}
					defer func() { _ = loader.StopWatching() }()
				} else if err := engine.LoadPolicies(ctx, policies); err != nil {
					return err
				}
				srvCfg.Policy = engine
			}

			srv, err := server.New(srvCfg)
			if err != nil {
				return err
			}
			if err := srv.Load(ctx); err != nil {
				return err
			}

			logger.Info().
				Str("db", dbPath).
				Str("schemas", schemaDir).
				Int("policies", len(policies)).
				Msg("Starting descriptions server")
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "descriptions.db", "SQLite database path")
	cmd.Flags().StringVar(&schemaDir, "schemas", "./schemas", "view schema directory")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload schemas and policies when files change")
	cmd.Flags().StringSliceVar(&policies, "policies", nil, "rego policy files or directories")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", server.DefaultIdleTimeout, "drop sessions idle for this long")
	cmd.Flags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "none", "trace exporter (none, stdout, otlp)")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "localhost:4317", "OTLP gRPC endpoint")
	cmd.Flags().StringVar(&profile, "profile", "default", "telemetry profile (default, development, production); explicit flags override it")

	return cmd
}

// telemetryConfig returns the telemetry configuration of a serve profile.
func telemetryConfig(profile string) (*telemetry.Config, error) {
	switch profile {
	case "", "default":
		return telemetry.DefaultConfig(), nil
	case "development", "dev":
		return telemetry.DevelopmentConfig(), nil
	case "production", "prod":
		return telemetry.ProductionConfig(), nil
	}
	return nil, fmt.Errorf("unknown profile %q: expected default, development or production", profile)
}

// openStore opens and migrates the SQLite store at path.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}
