package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format is the syntax of a schema source.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnsupportedFormat is returned for files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported schema format")

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Parser parses and validates view schema files.
type Parser struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewParser creates a new parser.
func NewParser() *Parser {
	ctx := cuecontext.New()

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Parser{
		ctx:       ctx,
		schemas:   NewSchemaRegistry(ctx),
		validator: v,
	}
}

// Schemas returns the schema registry.
func (p *Parser) Schemas() *SchemaRegistry {
	return p.schemas
}

// ParseFile parses one schema file. Validation problems are reported in
// ParsedView.Errors; the error return is reserved for I/O failures and
// unsupported formats.
func (p *Parser) ParseFile(ctx context.Context, path string) (*ParsedView, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}

	return p.Parse(path, data, format), nil
}

// ParseInline parses inline CUE content.
func (p *Parser) ParseInline(ctx context.Context, content string) *ParsedView {
	return p.Parse("inline", []byte(content), FormatCUE)
}

// ParseDir parses every schema file directly inside dir, in name order.
// Two files declaring the same view name are reported on the later file.
func (p *Parser) ParseDir(ctx context.Context, dir string) ([]*ParsedView, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := FormatFromPath(entry.Name()); err == nil {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	seen := make(map[string]string)
	views := make([]*ParsedView, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pv, err := p.ParseFile(ctx, file)
		if err != nil {
			return nil, err
		}
		if pv.Valid() {
			if prev, ok := seen[pv.View.Name]; ok {
				pv.Errors = append(pv.Errors, ValidationError{
					File:     file,
					Path:     "name",
					Message:  fmt.Sprintf("view %q already declared in %s", pv.View.Name, prev),
					Severity: "error",
				})
			} else {
				seen[pv.View.Name] = file
			}
		}
		views = append(views, pv)
	}

	return views, nil
}

// Parse parses data in the given format. file names the source in errors.
func (p *Parser) Parse(file string, data []byte, format Format) *ParsedView {
	pv := &ParsedView{
		SourceFile: file,
		ParsedAt:   time.Now(),
	}

	var val cue.Value
	var lines lineIndex
	switch format {
	case FormatYAML:
		doc, idx, err := decodeYAML(data)
		if err != nil {
			pv.Errors = append(pv.Errors, yamlError(file, err))
			return pv
		}
		val = p.ctx.Encode(doc)
		lines = idx
	case FormatCUE, FormatJSON:
		val = p.ctx.CompileBytes(data, cue.Filename(file))
	default:
		pv.Errors = append(pv.Errors, ValidationError{
			File:     file,
			Message:  fmt.Sprintf("unsupported format %q", format),
			Severity: "error",
		})
		return pv
	}

	if err := val.Err(); err != nil {
		pv.Errors = append(pv.Errors, p.convertCUEErrors(file, err, lines)...)
		return pv
	}

	unified, err := p.schemas.Unify("descriptions", val)
	if err != nil {
		pv.Errors = append(pv.Errors, p.convertCUEErrors(file, err, lines)...)
		return pv
	}

	var view ViewConfig
	if err := unified.Decode(&view); err != nil {
		pv.Errors = append(pv.Errors, ValidationError{
			File:     file,
			Message:  fmt.Sprintf("failed to decode view: %v", err),
			Severity: "error",
		})
		return pv
	}
	if view.Name == "" {
		view.Name = defaultViewName(file)
	}

	if err := p.validator.Struct(view); err != nil {
		pv.Errors = append(pv.Errors, p.convertValidatorErrors(file, err, lines)...)
	}

	pv.View = view
	return pv
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (p *Parser) convertCUEErrors(file string, err error, lines lineIndex) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range cueerrors.Errors(err) {
		path := strings.Join(e.Path(), ".")
		ve := ValidationError{
			File:     file,
			Path:     path,
			Message:  cueerrors.Details(e, nil),
			Severity: "error",
		}

		// Positions inside the built-in schema point at the definition, not
		// the user's file.
		for _, pos := range cueerrors.Positions(e) {
			if pos.Filename() == file {
				ve.Line = pos.Line()
				ve.Column = pos.Column()
				break
			}
		}
		if ve.Line == 0 {
			ve.Line, ve.Column = lines.lookup(path)
		}

		validationErrors = append(validationErrors, ve)
	}

	return validationErrors
}

func (p *Parser) convertValidatorErrors(file string, err error, lines lineIndex) []ValidationError {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []ValidationError{{File: file, Message: err.Error(), Severity: "error"}}
	}

	out := make([]ValidationError, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		path := namespaceToPath(fe.Namespace())
		line, col := lines.lookup(path)
		out = append(out, ValidationError{
			File:     file,
			Line:     line,
			Column:   col,
			Path:     path,
			Message:  fmt.Sprintf("failed %q rule (value %v)", fe.Tag(), fe.Value()),
			Severity: "error",
		})
	}
	return out
}

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// namespaceToPath turns "ViewConfig.columns[1].mode" into "columns.1.mode".
func namespaceToPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	} else {
		ns = ""
	}
	return indexPattern.ReplaceAllString(ns, ".$1")
}

func defaultViewName(file string) string {
	if file == "" || file == "inline" {
		return "inline"
	}
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// lineIndex maps dotted document paths to YAML positions.
type lineIndex map[string][2]int

// lookup returns the position of path or its nearest ancestor.
func (li lineIndex) lookup(path string) (int, int) {
	for {
		if pos, ok := li[path]; ok {
			return pos[0], pos[1]
		}
		i := strings.LastIndex(path, ".")
		if i < 0 {
			if pos, ok := li[""]; ok && path != "" {
				return pos[0], pos[1]
			}
			return 0, 0
		}
		path = path[:i]
	}
}

// decodeYAML decodes a YAML document and records the position of every node.
func decodeYAML(data []byte) (interface{}, lineIndex, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, nil, err
	}

	idx := make(lineIndex)
	if len(root.Content) == 0 {
		return map[string]interface{}{}, idx, nil
	}
	indexYAML(root.Content[0], "", idx)

	var doc interface{}
	if err := root.Content[0].Decode(&doc); err != nil {
		return nil, nil, err
	}
	return doc, idx, nil
}

func indexYAML(node *yaml.Node, path string, idx lineIndex) {
	idx[path] = [2]int{node.Line, node.Column}

	join := func(seg string) string {
		if path == "" {
			return seg
		}
		return path + "." + seg
	}

	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			child := join(key.Value)
			indexYAML(node.Content[i+1], child, idx)
			idx[child] = [2]int{key.Line, key.Column}
		}
	case yaml.SequenceNode:
		for i, item := range node.Content {
			indexYAML(item, join(strconv.Itoa(i)), idx)
		}
	}
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

func yamlError(file string, err error) ValidationError {
	ve := ValidationError{
		File:     file,
		Message:  err.Error(),
		Severity: "error",
	}
	if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
		ve.Line, _ = strconv.Atoi(m[1])
	}
	return ve
}
