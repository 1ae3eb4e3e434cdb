package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/descriptions/pkg/config"
	"github.com/openfroyo/descriptions/pkg/descriptions"
	"github.com/openfroyo/descriptions/pkg/editable"
	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/policy"
)

type renderOptions struct {
	schema   string
	entity   string
	edits    []string
	out      string
	user     string
	roles    []string
	policies []string
	watch    bool
}

func newRenderCommand() *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render <schema>",
		Short: "Render an entity through a view schema",
		Long: `Render an entity through a view schema and print the resulting fields.

Edits given with --set are applied through the same edit flow as the API:
the field enters edit mode, its validation rules run, and the saved value
is written back into the entity. Use --out to keep the edited entity.`,
		Example: `  # Render an entity as a table
  froyo-desc render ./schemas/account.yaml --entity acct.json

  # Apply an edit and save the result
  froyo-desc render account.yaml --entity acct.json --set owner.email='"ops@acme.io"' --out acct.json

  # Render as the viewer role with extra policies
  froyo-desc render account.yaml --entity acct.json --roles viewer --policies ./policies`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.schema = args[0]
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			log.Debug().
				Str("schema", opts.schema).
				Str("entity", opts.entity).
				Int("edits", len(opts.edits)).
				Msg("Rendering view")

			if err := renderOnce(ctx, opts, out); err != nil {
				return err
			}
			if !opts.watch {
				return nil
			}

			paths := []string{opts.schema}
			if opts.entity != "" && opts.entity != "-" {
				paths = append(paths, opts.entity)
			}
			watcher := config.NewWatcher(log.Logger, 0)
			if err := watcher.Watch(ctx, paths, func(files []string) {
				log.Info().Strs("files", files).Msg("Re-rendering")
				if err := renderOnce(ctx, opts, out); err != nil {
					log.Error().Err(err).Msg("Render failed")
				}
			}); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.entity, "entity", "e", "", "entity JSON or YAML file (- for JSON on stdin)")
	cmd.Flags().StringArrayVar(&opts.edits, "set", nil, "edit a field: key=value, value parsed as JSON (repeatable)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the edited entity to this file")
	cmd.Flags().StringVar(&opts.user, "user", "", "subject user for policy evaluation")
	cmd.Flags().StringSliceVar(&opts.roles, "roles", nil, "subject roles for policy evaluation")
	cmd.Flags().StringSliceVar(&opts.policies, "policies", nil, "rego policy files or directories")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-render when the schema or entity changes")

	return cmd
}

func renderOnce(ctx context.Context, opts renderOptions, out io.Writer) error {
	cv, err := compileFile(ctx, opts.schema)
	if err != nil {
		return err
	}

	data := entity.Entity{}
	if opts.entity != "" {
		if data, err = readEntity(opts.entity); err != nil {
			return err
		}
	}

	cfg := descriptions.FromCompiledView(cv, descriptions.Config{
		DataSource: data,
		Subject:    policy.Subject{User: opts.user, Roles: opts.roles},
		Editable: &descriptions.EditableConfig{
			Type:   descriptions.EditTypeMultiple,
			Reject: editable.RejectError,
		},
		Logger: log.Logger,
	})
	if len(opts.policies) > 0 || opts.user != "" || len(opts.roles) > 0 {
		engine, err := policy.NewEngine(log.Logger)
		if err != nil {
			return err
		}
		if len(opts.policies) > 0 {
			if err := engine.LoadPolicies(ctx, opts.policies); err != nil {
				return err
			}
		}
		cfg.Policy = engine
	}

	d := descriptions.New(cfg)
	d.Mount(ctx)

	for _, edit := range opts.edits {
		if err := applyEdit(ctx, d, edit); err != nil {
			return err
		}
	}

	if opts.out != "" {
		if err := writeEntity(opts.out, d.DataSource()); err != nil {
			return err
		}
	}

	view := d.Render(ctx)
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	return printView(out, view)
}

// applyEdit runs one key=value edit through start, set and save.
func applyEdit(ctx context.Context, d *descriptions.Descriptions, edit string) error {
	raw, value, ok := strings.Cut(edit, "=")
	if !ok {
		return fmt.Errorf("invalid edit %q: expected key=value", edit)
	}
	key, err := entity.ParseKey(raw)
	if err != nil {
		return fmt.Errorf("invalid edit %q: %w", edit, err)
	}
	if err := d.StartEditable(key); err != nil {
		return fmt.Errorf("edit %s: %w", raw, err)
	}
	if err := d.SetValue(key, parseValue(value)); err != nil {
		return fmt.Errorf("edit %s: %w", raw, err)
	}
	if err := d.Save(ctx, key); err != nil {
		return fmt.Errorf("edit %s: %w", raw, err)
	}
	return nil
}

// parseValue reads s as JSON and falls back to the raw string.
func parseValue(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func compileFile(ctx context.Context, path string) (*config.CompiledView, error) {
	pv, err := config.NewParser().ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return config.NewCompiler(nil, log.Logger).Compile(pv)
}

func readEntity(path string) (entity.Entity, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entity: %w", err)
	}
	var e entity.Entity
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &e)
	default:
		err = json.Unmarshal(data, &e)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse entity %s: %w", path, err)
	}
	if e == nil {
		return nil, fmt.Errorf("entity %s must be a JSON object", path)
	}
	return e, nil
}

func writeEntity(path string, e entity.Entity) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func printView(out io.Writer, view descriptions.View) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if view.Title != "" {
		fmt.Fprintln(tw, view.Title)
	}
	if view.Loading {
		fmt.Fprintln(tw, "(loading)")
		return tw.Flush()
	}

	fmt.Fprintln(tw, "FIELD\tVALUE\tMODE")
	for _, it := range view.Body {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", itemLabel(it), it.Presentation.Text, it.Mode)
	}
	if len(view.Options) > 0 {
		fmt.Fprintln(tw, "\nOPTION\tVALUE\t")
		for _, it := range view.Options {
			fmt.Fprintf(tw, "%s\t%s\t\n", itemLabel(it), it.Presentation.Text)
		}
	}
	for _, p := range view.Problems {
		if p.Field != "" {
			fmt.Fprintf(tw, "! %s\t%s: %s\t\n", p.Kind, p.Field, p.Message)
		} else {
			fmt.Fprintf(tw, "! %s\t%s\t\n", p.Kind, p.Message)
		}
	}
	return tw.Flush()
}

func itemLabel(it descriptions.Item) string {
	if it.Title != "" {
		return it.Title
	}
	return it.Key.String()
}
