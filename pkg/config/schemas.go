package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
)

// SchemaRegistry manages CUE definitions for validation. Values are compiled
// in the parser's context so they unify with parsed documents.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in definitions.
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema("descriptions", "#Descriptions", builtinDescriptionsSchema); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema("column", "#Column", builtinDescriptionsSchema); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles source and registers its definition under name.
func (sr *SchemaRegistry) RegisterSchema(name, definition, source string) error {
	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, definition)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify unifies val with the named schema and validates the result.
func (sr *SchemaRegistry) Unify(name string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(name)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", name)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return unified, err
	}
	return unified, nil
}

// ValidateAgainstSchema encodes data and validates it against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if _, err := sr.Unify(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinDescriptionsSchema = `
#Descriptions: {
	// Name identifies the view
	name?: string & =~"^[a-zA-Z0-9][a-zA-Z0-9_-]*$"

	title?:   string
	tooltip?: string

	edit_type?: "single" | "multiple"
	manual?:    bool
	params?: {[string]: _}

	columns: [...#Column]
}

#Column: {
	// Path is a dotted path into the entity
	path?: string & =~"^[^.]+(\\.[^.]+)*$"

	title?:   string
	tooltip?: string
	order?:   int

	// Unknown value types degrade to text at render time
	value_type?: string & =~"^[a-zA-Z][a-zA-Z0-9]*$"

	hide?:     bool
	editable?: bool
	mode?:     "read" | "edit"
	children?: _

	value_enum?: {[string]: {
		text:    string
		status?: string
	}}
	params?: {[string]: _}
	rules?: string

	span?:     int & >=0
	copyable?: bool
	ellipsis?: bool
	plain?:    bool

	value_type_expr?:  string
	editable_expr?:    string
	render_text_expr?: string
	title_expr?:       string
}
`
