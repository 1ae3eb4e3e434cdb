package render

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/schema"
)

// FieldContext is what a renderer knows about the field it draws.
type FieldContext struct {
	Key       entity.Key
	ValueType schema.ValueType
	ValueEnum schema.ValueEnum
	Entity    entity.Entity
	Plain     bool
}

// Presentation is a renderer's output. Painting it is the caller's job;
// Text is always a usable plain-text fallback.
type Presentation struct {
	Text   string      `json:"text"`
	Widget string      `json:"widget,omitempty"`
	Status string      `json:"status,omitempty"`
	Value  interface{} `json:"value,omitempty"`
}

// Renderer draws a value type in read mode and provides its default editor.
type Renderer interface {
	Render(value interface{}, fc FieldContext) Presentation
	RenderFormItem(value interface{}, fc FieldContext) Presentation
}

// RendererFuncs adapts two functions to a Renderer.
type RendererFuncs struct {
	ReadFunc func(value interface{}, fc FieldContext) Presentation
	EditFunc func(value interface{}, fc FieldContext) Presentation
}

// Render implements Renderer.
func (r RendererFuncs) Render(value interface{}, fc FieldContext) Presentation {
	if r.ReadFunc == nil {
		return Presentation{Text: Stringify(value)}
	}
	return r.ReadFunc(value, fc)
}

// RenderFormItem implements Renderer.
func (r RendererFuncs) RenderFormItem(value interface{}, fc FieldContext) Presentation {
	if r.EditFunc == nil {
		return Presentation{Text: Stringify(value), Widget: "input", Value: value}
	}
	return r.EditFunc(value, fc)
}

// Registry maps value types to renderers.
type Registry struct {
	mu        sync.RWMutex
	renderers map[schema.ValueType]Renderer
	fallback  Renderer
}

// NewRegistry returns a registry preloaded with the built-in renderers.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for vt, renderer := range builtinRenderers() {
		r.renderers[vt] = renderer
	}
	return r
}

// NewEmptyRegistry returns a registry that only knows the text fallback.
func NewEmptyRegistry() *Registry {
	return &Registry{
		renderers: make(map[schema.ValueType]Renderer),
		fallback:  textRenderer(),
	}
}

// Register adds or replaces the renderer for vt.
func (r *Registry) Register(vt schema.ValueType, renderer Renderer) error {
	if vt == "" {
		return fmt.Errorf("value type is required")
	}
	if renderer == nil {
		return fmt.Errorf("renderer for %q is nil", vt)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[vt] = renderer
	return nil
}

// Lookup returns the renderer registered for vt.
func (r *Registry) Lookup(vt schema.ValueType) (Renderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[vt]
	return renderer, ok
}

// Has implements schema.Lookup.
func (r *Registry) Has(vt schema.ValueType) bool {
	_, ok := r.Lookup(vt)
	return ok
}

// Resolve returns the renderer for vt, or the raw text fallback.
func (r *Registry) Resolve(vt schema.ValueType) Renderer {
	if renderer, ok := r.Lookup(vt); ok {
		return renderer
	}
	return r.fallback
}

// Types lists the registered value types in sorted order.
func (r *Registry) Types() []schema.ValueType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.ValueType, 0, len(r.renderers))
	for vt := range r.renderers {
		out = append(out, vt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
