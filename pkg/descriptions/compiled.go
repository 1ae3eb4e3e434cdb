package descriptions

import (
	"github.com/openfroyo/descriptions/pkg/config"
)

// FromCompiledView fills the schema part of cfg from a view loaded from a
// schema file. Fields already set on cfg win.
func FromCompiledView(cv *config.CompiledView, cfg Config) Config {
	if cfg.Name == "" {
		cfg.Name = cv.Name
	}
	if cfg.Title == "" {
		cfg.Title = cv.Title
	}
	if cfg.Tooltip == "" {
		cfg.Tooltip = cv.Tooltip
	}
	if cfg.Columns == nil {
		cfg.Columns = cv.Columns
	}
	if cfg.Params == nil {
		cfg.Params = cv.Params
	}
	cfg.Manual = cfg.Manual || cv.Manual
	if cfg.Editable != nil && cfg.Editable.Type == "" && cv.EditType != "" {
		cfg.Editable.Type = EditType(cv.EditType)
	}
	return cfg
}
