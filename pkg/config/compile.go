package config

import (
	"context"
	"fmt"

	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/schema"
	"github.com/rs/zerolog"
)

// CompiledView is a view ready for the descriptions component.
type CompiledView struct {
	Name     string
	Title    string
	Tooltip  string
	EditType string
	Manual   bool
	Params   map[string]interface{}
	Columns  []schema.FieldSchema

	// Source is the file the view was parsed from.
	Source string
}

// Compiler turns parsed views into field schemas, binding Starlark
// expressions to schema callbacks.
type Compiler struct {
	eval   *StarlarkEvaluator
	logger zerolog.Logger
}

// NewCompiler creates a compiler.
func NewCompiler(eval *StarlarkEvaluator, logger zerolog.Logger) *Compiler {
	if eval == nil {
		eval = NewStarlarkEvaluator(0)
	}
	return &Compiler{
		eval:   eval,
		logger: logger.With().Str("component", "schema-compiler").Logger(),
	}
}

// Compile converts pv into a CompiledView. Expression syntax errors are
// returned as ValidationErrors.
func (c *Compiler) Compile(pv *ParsedView) (*CompiledView, error) {
	if err := pv.Err(); err != nil {
		return nil, err
	}

	view := pv.View
	cv := &CompiledView{
		Name:     view.Name,
		Title:    view.Title,
		Tooltip:  view.Tooltip,
		EditType: view.EditType,
		Manual:   view.Manual,
		Params:   view.Params,
		Columns:  make([]schema.FieldSchema, 0, len(view.Columns)),
		Source:   pv.SourceFile,
	}

	var errs ValidationErrors
	for i, col := range view.Columns {
		field, colErrs := c.compileColumn(view.Name, i, col)
		for _, e := range colErrs {
			e.File = pv.SourceFile
			errs = append(errs, e)
		}
		cv.Columns = append(cv.Columns, field)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	return cv, nil
}

func (c *Compiler) compileColumn(viewName string, index int, col ColumnConfig) (schema.FieldSchema, []ValidationError) {
	field := schema.FieldSchema{
		Path:      entity.ParsePath(col.Path),
		Title:     col.Title,
		Tooltip:   col.Tooltip,
		Order:     col.Order,
		ValueType: schema.ValueType(col.ValueType),
		Hide:      col.Hide,
		Editable:  col.Editable,
		Mode:      schema.Mode(col.Mode),
		Children:  col.Children,
		ValueEnum: col.ValueEnum,
		Params:    col.Params,
		Rules:     col.Rules,
		Span:      col.Span,
		Copyable:  col.Copyable,
		Ellipsis:  col.Ellipsis,
		Plain:     col.Plain,
	}

	var errs []ValidationError
	check := func(prop, expr string) bool {
		if expr == "" {
			return false
		}
		name := fmt.Sprintf("%s.columns.%d.%s", viewName, index, prop)
		if err := c.eval.Check(name, expr); err != nil {
			errs = append(errs, ValidationError{
				Path:     fmt.Sprintf("columns.%d.%s", index, prop),
				Message:  err.Error(),
				Severity: "error",
			})
			return false
		}
		return true
	}

	logger := c.logger.With().Str("view", viewName).Int("column", index).Logger()

	if check("value_type_expr", col.ValueTypeExpr) {
		expr := col.ValueTypeExpr
		field.ValueTypeFunc = func(e entity.Entity) schema.ValueType {
			out, err := c.eval.Evaluate(context.Background(), "value_type_expr", expr, map[string]interface{}{
				"entity": e,
			})
			if err != nil {
				logger.Warn().Err(err).Msg("value_type_expr failed")
				return ""
			}
			s, _ := out.Value.(string)
			return schema.ValueType(s)
		}
	}

	if check("editable_expr", col.EditableExpr) {
		expr := col.EditableExpr
		field.EditableFunc = func(value interface{}, e entity.Entity, index int) bool {
			out, err := c.eval.Evaluate(context.Background(), "editable_expr", expr, map[string]interface{}{
				"value":  value,
				"entity": e,
				"index":  index,
			})
			if err != nil {
				logger.Warn().Err(err).Msg("editable_expr failed")
				return false
			}
			return truthy(out.Value)
		}
	}

	if check("render_text_expr", col.RenderTextExpr) {
		expr := col.RenderTextExpr
		field.RenderText = func(value interface{}, e entity.Entity, index int, _ schema.Actions) interface{} {
			out, err := c.eval.Evaluate(context.Background(), "render_text_expr", expr, map[string]interface{}{
				"value":  value,
				"entity": e,
				"index":  index,
			})
			if err != nil {
				logger.Warn().Err(err).Msg("render_text_expr failed")
				return value
			}
			return out.Value
		}
	}

	if check("title_expr", col.TitleExpr) {
		expr := col.TitleExpr
		field.TitleFunc = func(f *schema.FieldSchema) string {
			out, err := c.eval.Evaluate(context.Background(), "title_expr", expr, map[string]interface{}{
				"title":   f.Title,
				"tooltip": f.Tooltip,
				"path":    f.Path.String(),
			})
			if err != nil {
				logger.Warn().Err(err).Msg("title_expr failed")
				return f.Title
			}
			if s, ok := out.Value.(string); ok {
				return s
			}
			return fmt.Sprint(out.Value)
		}
	}

	return field, errs
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}
