package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/descriptions/pkg/config"
)

// schemaReport is the validation outcome of one schema file.
type schemaReport struct {
	File   string                   `json:"file"`
	View   string                   `json:"view,omitempty"`
	Fields int                      `json:"fields,omitempty"`
	Errors []config.ValidationError `json:"errors,omitempty"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate view schema files",
		Long: `Validate view schema files in YAML, JSON or CUE.

This command checks:
  - Syntax and the view schema structure
  - Column rules (modes, spans, edit types)
  - Starlark expression syntax`,
		Example: `  # Validate schemas in the current directory
  froyo-desc validate

  # Validate one file
  froyo-desc validate ./schemas/account.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			log.Debug().Str("path", path).Msg("Validating schemas")

			reports, err := validatePath(cmd, path)
			if err != nil {
				return err
			}
			return printReports(cmd.OutOrStdout(), reports)
		},
	}
	return cmd
}

func validatePath(cmd *cobra.Command, path string) ([]schemaReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	parser := config.NewParser()
	var parsed []*config.ParsedView
	if info.IsDir() {
		if parsed, err = parser.ParseDir(cmd.Context(), path); err != nil {
			return nil, err
		}
	} else {
		pv, err := parser.ParseFile(cmd.Context(), path)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, pv)
	}

	compiler := config.NewCompiler(nil, log.Logger)
	reports := make([]schemaReport, 0, len(parsed))
	for _, pv := range parsed {
		report := schemaReport{File: pv.SourceFile, View: pv.View.Name}
		cv, err := compiler.Compile(pv)
		var verrs config.ValidationErrors
		switch {
		case err == nil:
			report.Fields = len(cv.Columns)
		case errors.As(err, &verrs):
			report.Errors = verrs
		default:
			report.Errors = []config.ValidationError{{File: pv.SourceFile, Message: err.Error(), Severity: "error"}}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func printReports(out io.Writer, reports []schemaReport) error {
	invalid := 0
	for _, r := range reports {
		if len(r.Errors) > 0 {
			invalid++
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			if len(r.Errors) == 0 {
				fmt.Fprintf(out, "ok    %s (%s, %d fields)\n", r.File, r.View, r.Fields)
				continue
			}
			fmt.Fprintf(out, "FAIL  %s\n", r.File)
			for _, e := range r.Errors {
				fmt.Fprintf(out, "      %s\n", e.Error())
			}
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d schema files invalid", invalid, len(reports))
	}
	return nil
}
