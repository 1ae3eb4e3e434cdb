package descriptions

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/descriptions/pkg/editable"
	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/fetch"
	"github.com/openfroyo/descriptions/pkg/layout"
	"github.com/openfroyo/descriptions/pkg/policy"
	"github.com/openfroyo/descriptions/pkg/render"
	"github.com/openfroyo/descriptions/pkg/schema"
	"github.com/openfroyo/descriptions/pkg/telemetry"
)

// Descriptions renders one entity through a column schema.
type Descriptions struct {
	cfg        Config
	name       string
	registry   *render.Registry
	dispatcher *render.Dispatcher
	loader     *fetch.Loader
	editor     *editable.Controller
	tel        *telemetry.Telemetry
	logger     zerolog.Logger

	mu      sync.Mutex
	columns []schema.FieldSchema
	enums   map[enumKey]schema.ValueEnum

	// fields is the last resolution, valid while generation is unchanged.
	generation uint64
	fields     []schema.ResolvedField
	fieldsGen  uint64
	fieldsOK   bool
}

var (
	_ Handle          = (*Descriptions)(nil)
	_ editable.Source = (*Descriptions)(nil)
)

// New assembles a component from cfg. Call Mount to issue the initial
// request.
func New(cfg Config) *Descriptions {
	name := cfg.Name
	if name == "" {
		name = "descriptions"
	}
	tel := cfg.Telemetry
	if tel == nil {
		tel = telemetry.NewNop()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = render.NewRegistry()
	}

	d := &Descriptions{
		cfg:      cfg,
		name:     name,
		registry: registry,
		tel:      tel,
		logger:   cfg.Logger.With().Str("component", "descriptions").Str("view", name).Logger(),
		columns:  cfg.Columns,
		enums:    make(map[enumKey]schema.ValueEnum),
	}

	d.dispatcher = render.NewDispatcher(registry)
	ec := cfg.Editable
	if ec == nil {
		ec = &EditableConfig{}
	}
	d.dispatcher.ShowDelete = ec.ShowDelete
	if ec.SaveText != "" {
		d.dispatcher.SaveText = ec.SaveText
	}
	if ec.CancelText != "" {
		d.dispatcher.CancelText = ec.CancelText
	}
	if ec.DeleteText != "" {
		d.dispatcher.DeleteText = ec.DeleteText
	}

	d.loader = fetch.NewLoader(fetch.Config{
		Request:            d.traced(cfg.Request),
		Params:             cfg.Params,
		DataSource:         cfg.DataSource,
		Manual:             cfg.Manual,
		StalePolicy:        cfg.StalePolicy,
		OnRequestError:     d.onRequestError,
		OnLoadingChange:    cfg.OnLoadingChange,
		OnDataSourceChange: d.onDataSourceChange,
		Observer:           &fetchObserver{view: name, entityID: cfg.EntityID, tel: tel},
		Logger:             d.logger,
	})

	maxActive := 1
	if ec.Type == EditTypeMultiple {
		maxActive = 0
	}
	d.editor = editable.NewController(d, editable.Config{
		MaxActive:    maxActive,
		Reject:       ec.Reject,
		Form:         ec.Form,
		OnSave:       d.onSave(ec.OnSave),
		OnDelete:     d.onDelete(ec.OnDelete),
		OnCancel:     ec.OnCancel,
		OnChange:     d.onEditChange(ec.OnChange),
		OnTransition: d.onTransition,
		Logger:       d.logger,
	})

	return d
}

// Name returns the view name.
func (d *Descriptions) Name() string { return d.name }

// Mount issues the initial request unless the view is static or manual.
func (d *Descriptions) Mount(ctx context.Context) {
	d.loader.Mount(ctx)
}

// SetParams replaces the request params. A changed fingerprint triggers
// exactly one request.
func (d *Descriptions) SetParams(ctx context.Context, params map[string]interface{}) (fetch.RequestState, error) {
	return d.loader.Load(ctx, params)
}

// SetColumns swaps the schema. Edits in progress are dropped and cached
// value enums are cleared.
func (d *Descriptions) SetColumns(columns []schema.FieldSchema) {
	d.mu.Lock()
	d.columns = columns
	d.enums = make(map[enumKey]schema.ValueEnum)
	d.generation++
	d.mu.Unlock()
	d.editor.Reset()
}

// State returns the request state.
func (d *Descriptions) State() fetch.RequestState { return d.loader.State() }

// Wait blocks until every issued request has settled.
func (d *Descriptions) Wait() { d.loader.Wait() }

// Editor returns the editable controller.
func (d *Descriptions) Editor() *editable.Controller { return d.editor }

// Reload refetches with the current params and drops cached value enums.
func (d *Descriptions) Reload(ctx context.Context) error {
	d.mu.Lock()
	d.enums = make(map[enumKey]schema.ValueEnum)
	d.generation++
	d.mu.Unlock()
	return d.loader.Reload(ctx)
}

// SetDataSource replaces the committed entity.
func (d *Descriptions) SetDataSource(e entity.Entity) {
	d.mu.Lock()
	d.generation++
	d.mu.Unlock()
	d.loader.SetDataSource(e)
}

// DataSource returns the committed entity.
func (d *Descriptions) DataSource() entity.Entity {
	return d.loader.DataSource()
}

// readOnly refuses edit transitions on a view without an editable config.
func (d *Descriptions) readOnly(key entity.Key) error {
	if d.cfg.Editable != nil {
		return nil
	}
	return fmt.Errorf("%w: %s: view is read-only", editable.ErrNotEditable, key)
}

// StartEditable moves key to edit mode.
func (d *Descriptions) StartEditable(key entity.Key) error {
	if err := d.readOnly(key); err != nil {
		return err
	}
	return d.editor.StartEditable(key)
}

// SetValue records the in-progress value of an editing field.
func (d *Descriptions) SetValue(key entity.Key, value interface{}) error {
	if err := d.readOnly(key); err != nil {
		return err
	}
	return d.editor.SetValue(key, value)
}

// Cancel discards the in-progress value of key.
func (d *Descriptions) Cancel(key entity.Key) error {
	if err := d.readOnly(key); err != nil {
		return err
	}
	return d.editor.Cancel(key)
}

// Save validates and commits the in-progress value of key.
func (d *Descriptions) Save(ctx context.Context, key entity.Key) error {
	if err := d.readOnly(key); err != nil {
		return err
	}
	ctx, span := d.tel.Tracer.StartEditSpan(ctx, d.name, key.String(), "save")
	defer span.End()

	err := d.editor.Save(ctx, key)
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	return err
}

// Delete removes the value of an editing field.
func (d *Descriptions) Delete(ctx context.Context, key entity.Key) error {
	if err := d.readOnly(key); err != nil {
		return err
	}
	ctx, span := d.tel.Tracer.StartEditSpan(ctx, d.name, key.String(), "delete")
	defer span.End()

	err := d.editor.Delete(ctx, key)
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	return err
}

// Field resolves key against the committed entity. The last resolution is
// reused until the columns, the entity or the enum cache change.
func (d *Descriptions) Field(key entity.Key) (schema.ResolvedField, bool) {
	d.mu.Lock()
	gen := d.generation
	fields, ok := d.fields, d.fieldsOK && d.fieldsGen == gen
	d.mu.Unlock()

	if !ok {
		var problems []Problem
		fields, problems = d.resolve(context.Background(), d.entity())
		d.remember(gen, fields, problems)
	}
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return schema.ResolvedField{}, false
}

// Render runs one render pass over the committed entity. Errors are
// recovered per field and reported in View.Problems.
func (d *Descriptions) Render(ctx context.Context) View {
	ctx, span := d.tel.Tracer.StartRenderSpan(ctx, d.name)
	defer span.End()
	timer := telemetry.NewTimer()

	state := d.loader.State()
	view := View{
		Title:   d.cfg.Title,
		Tooltip: d.cfg.Tooltip,
		Status:  state.Status,
		Body:    []Item{},
		Options: []Item{},
		Extra:   d.cfg.Extra,
	}
	if view.Tooltip == "" {
		view.Tooltip = d.cfg.Tip
	}
	if state.Err != nil {
		view.Problems = append(view.Problems, Problem{Kind: ProblemRequest, Message: state.Err.Error(), Err: state.Err})
	}

	if d.loading(state) {
		view.Loading = true
		return view
	}

	d.mu.Lock()
	gen := d.generation
	d.mu.Unlock()
	e := d.entity()
	fields, problems := d.resolve(ctx, e)
	d.remember(gen, fields, problems)

	rc := render.Context{Entity: e, Form: d.editor.Form()}
	if d.cfg.Editable != nil {
		rc.Editable = d.editor
	}

	items := make([]Item, 0, len(fields))
	for _, f := range fields {
		c := d.dispatcher.Dispatch(f, rc)
		p, err := d.dispatcher.Execute(c)
		if err != nil {
			problems = append(problems, configurationProblems(err)...)
		}
		d.tel.Metrics.RecordFieldRendered(string(c.ValueType), string(c.Mode))
		items = append(items, Item{Contract: c, Presentation: p})
	}

	parts := layout.Partition(items)
	view.Body = parts.Body
	view.Options = parts.Options
	for _, k := range d.editor.EditingKeys() {
		view.Editing = append(view.Editing, k.String())
	}

	for _, p := range problems {
		d.report(p)
	}
	view.Problems = append(view.Problems, problems...)

	d.tel.Metrics.RecordRender(d.name, timer.Duration())
	telemetry.RecordSuccess(span)
	return view
}

// loading applies the override, then the loader flag. A view that has a
// request but never fetched is loading unless it is manual.
func (d *Descriptions) loading(state fetch.RequestState) bool {
	if d.cfg.Loading != nil {
		return *d.cfg.Loading
	}
	if d.loader.Loading() {
		return true
	}
	return state.Status == fetch.StatusIdle && d.loader.HasRequest() && !d.cfg.Manual
}

func (d *Descriptions) entity() entity.Entity {
	if e := d.loader.DataSource(); e != nil {
		return e
	}
	return entity.Entity{}
}

// resolve normalizes the current columns against e after applying value
// enums and the access policy.
func (d *Descriptions) resolve(ctx context.Context, e entity.Entity) ([]schema.ResolvedField, []Problem) {
	d.mu.Lock()
	items := make([]schema.FieldSchema, len(d.columns))
	copy(items, d.columns)
	d.mu.Unlock()

	problems := d.applyEnums(ctx, items)

	if d.cfg.Policy != nil {
		decision, err := d.cfg.Policy.Evaluate(ctx, &policy.PolicyInput{
			View:      d.name,
			EntityID:  d.cfg.EntityID,
			Entity:    map[string]interface{}(e),
			Subject:   d.cfg.Subject,
			Operation: policy.OperationRender,
			Fields:    policy.FieldKeys(items),
		})
		if err != nil {
			problems = append(problems, Problem{Kind: ProblemPolicy, Message: err.Error(), Err: err})
		} else {
			items = policy.Apply(items, decision)
		}
	}

	fields, err := schema.Normalize(items, e, schema.WithRegistry(d.registry), schema.WithActions(d))
	if err != nil {
		problems = append(problems, configurationProblems(err)...)
	}
	return fields, problems
}

// remember caches fields resolved at gen unless the inputs changed since
// or an enum request or policy evaluation failed.
func (d *Descriptions) remember(gen uint64, fields []schema.ResolvedField, problems []Problem) {
	for _, p := range problems {
		if p.Kind != ProblemConfiguration {
			return
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.generation != gen {
		return
	}
	d.fields, d.fieldsGen, d.fieldsOK = fields, gen, true
}

func configurationProblems(err error) []Problem {
	var out []Problem
	for _, ce := range schema.ConfigurationErrors(err) {
		out = append(out, Problem{
			Kind:    ProblemConfiguration,
			Field:   ce.Key.String(),
			Message: ce.Error(),
			Err:     ce,
		})
	}
	if len(out) == 0 && err != nil {
		out = append(out, Problem{Kind: ProblemConfiguration, Message: err.Error(), Err: err})
	}
	return out
}

func (d *Descriptions) report(p Problem) {
	d.logger.Warn().Str("kind", string(p.Kind)).Str("field", p.Field).Msg(p.Message)
	if p.Kind != ProblemConfiguration {
		return
	}
	var ce *schema.ConfigurationError
	vt := ""
	if errors.As(p.Err, &ce) {
		vt = string(ce.ValueType)
	}
	d.tel.Metrics.RecordConfigError(vt)
	_ = d.tel.Events.PublishConfigurationError(d.name, p.Field, p.Message)
}

func (d *Descriptions) authorize(ctx context.Context, op policy.Operation, key entity.Key, value interface{}) error {
	if d.cfg.Policy == nil {
		return nil
	}
	d.mu.Lock()
	fields := policy.FieldKeys(d.columns)
	d.mu.Unlock()

	return d.cfg.Policy.Authorize(ctx, &policy.PolicyInput{
		View:      d.name,
		EntityID:  d.cfg.EntityID,
		Entity:    map[string]interface{}(d.entity()),
		Subject:   d.cfg.Subject,
		Operation: op,
		Field:     key.String(),
		Value:     value,
		Fields:    fields,
	})
}

func (d *Descriptions) onSave(next func(context.Context, entity.Key, interface{}, entity.Entity) error) func(context.Context, entity.Key, interface{}, entity.Entity) error {
	return func(ctx context.Context, key entity.Key, value interface{}, record entity.Entity) error {
		if err := d.authorize(ctx, policy.OperationSave, key, value); err != nil {
			return err
		}
		if next != nil {
			return next(ctx, key, value, record)
		}
		return nil
	}
}

func (d *Descriptions) onDelete(next func(context.Context, entity.Key, entity.Entity) error) func(context.Context, entity.Key, entity.Entity) error {
	return func(ctx context.Context, key entity.Key, record entity.Entity) error {
		if err := d.authorize(ctx, policy.OperationDelete, key, nil); err != nil {
			return err
		}
		if next != nil {
			return next(ctx, key, record)
		}
		return nil
	}
}

func (d *Descriptions) onRequestError(err error) {
	if d.cfg.OnRequestError != nil {
		d.cfg.OnRequestError(err)
	}
}

func (d *Descriptions) onDataSourceChange(e entity.Entity) {
	d.mu.Lock()
	d.generation++
	d.mu.Unlock()
	_ = d.tel.Events.PublishDataSourceChanged(d.name, d.cfg.EntityID)
	if d.cfg.OnDataSourceChange != nil {
		d.cfg.OnDataSourceChange(e)
	}
}

// traced wraps request in a fetch span.
func (d *Descriptions) traced(request fetch.RequestFunc) fetch.RequestFunc {
	if request == nil {
		return nil
	}
	return func(ctx context.Context, params map[string]interface{}) (entity.Entity, error) {
		fp, _ := fetch.FingerprintOf(params)
		ctx, span := d.tel.Tracer.StartFetchSpan(ctx, d.name, string(fp), d.loader.State().Token)
		defer span.End()

		e, err := request(ctx, params)
		if err != nil {
			telemetry.RecordError(span, fmt.Errorf("request %s: %w", d.name, err))
		} else {
			telemetry.RecordSuccess(span)
		}
		return e, err
	}
}
