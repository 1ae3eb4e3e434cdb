package descriptions

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openfroyo/descriptions/pkg/editable"
	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/fetch"
	"github.com/openfroyo/descriptions/pkg/form"
	"github.com/openfroyo/descriptions/pkg/policy"
	"github.com/openfroyo/descriptions/pkg/render"
	"github.com/openfroyo/descriptions/pkg/schema"
	"github.com/openfroyo/descriptions/pkg/telemetry"
)

// EditType selects how many fields may be edited at once.
type EditType string

const (
	EditTypeSingle   EditType = "single"
	EditTypeMultiple EditType = "multiple"
)

// EditableConfig enables inline editing.
type EditableConfig struct {
	// Type defaults to EditTypeSingle.
	Type   EditType
	Reject editable.RejectPolicy

	// Form overrides the default in-memory form provider.
	Form form.Provider

	// ShowDelete adds a delete action next to save and cancel.
	ShowDelete bool
	SaveText   string
	CancelText string
	DeleteText string

	OnSave   func(ctx context.Context, key entity.Key, value interface{}, record entity.Entity) error
	OnDelete func(ctx context.Context, key entity.Key, record entity.Entity) error
	OnCancel func(key entity.Key)
	OnChange func(editing []entity.Key)
}

// Authorizer decides field visibility and edit rights. *policy.Engine
// implements it.
type Authorizer interface {
	Evaluate(ctx context.Context, input *policy.PolicyInput) (*policy.Decision, error)
	Authorize(ctx context.Context, input *policy.PolicyInput) error
}

// Config configures a Descriptions component.
type Config struct {
	// Name identifies the view in logs, metrics and events.
	Name     string
	EntityID string

	Title   string
	Tooltip string
	// Tip is the legacy spelling of Tooltip, used when Tooltip is empty.
	Tip string

	Columns []schema.FieldSchema

	Request fetch.RequestFunc
	Params  map[string]interface{}

	// DataSource is a static entity; no request is issued when it is set.
	DataSource entity.Entity
	Manual     bool
	// Loading overrides the computed loading flag.
	Loading     *bool
	StalePolicy fetch.StalePolicy

	// Editable enables inline editing. Nil renders every field read-only
	// without edit affordances.
	Editable *EditableConfig

	// Extra header items, shown after the option fields.
	Extra []interface{}

	// Registry defaults to the built-in renderers.
	Registry *render.Registry

	Policy  Authorizer
	Subject policy.Subject

	OnRequestError     func(err error)
	OnLoadingChange    func(loading bool)
	OnDataSourceChange func(e entity.Entity)

	Telemetry *telemetry.Telemetry
	Logger    zerolog.Logger
}

// Handle is the imperative surface exposed to callers and field callbacks.
type Handle interface {
	schema.Actions
	SetValue(key entity.Key, value interface{}) error
}

// Item is one rendered field.
type Item struct {
	render.Contract
	Presentation render.Presentation `json:"presentation"`
}

// ProblemKind classifies a recovered error.
type ProblemKind string

const (
	ProblemConfiguration ProblemKind = "configuration"
	ProblemRequest       ProblemKind = "request"
	ProblemPolicy        ProblemKind = "policy"
)

// Problem is an error recovered during a render pass.
type Problem struct {
	Kind    ProblemKind `json:"kind"`
	Field   string      `json:"field,omitempty"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
}

// View is the result of one render pass.
type View struct {
	Title   string       `json:"title,omitempty"`
	Tooltip string       `json:"tooltip,omitempty"`
	Status  fetch.Status `json:"status"`
	// Loading views carry no fields; callers show a placeholder.
	Loading bool `json:"loading"`

	Body    []Item        `json:"body"`
	Options []Item        `json:"options"`
	Extra   []interface{} `json:"extra,omitempty"`

	Editing  []string  `json:"editing,omitempty"`
	Problems []Problem `json:"problems,omitempty"`
}

// Field returns the rendered item with the given key.
func (v View) Field(key string) (Item, bool) {
	for _, group := range [][]Item{v.Body, v.Options} {
		for _, it := range group {
			if it.Key.String() == key {
				return it, true
			}
		}
	}
	return Item{}, false
}
