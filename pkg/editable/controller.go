package editable

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/form"
	"github.com/openfroyo/descriptions/pkg/schema"
)

// State is the edit state of one field.
type State string

const (
	StateRead    State = "read"
	StateEditing State = "editing"
)

// Sentinel errors returned by Controller transitions.
var (
	ErrNotEditable  = errors.New("field is not editable")
	ErrEditLimit    = errors.New("maximum number of fields already in edit")
	ErrNotEditing   = errors.New("field is not being edited")
	ErrKeyBusy      = errors.New("field has a transition in progress")
	ErrUnknownField = errors.New("unknown field")
	ErrNoPath       = errors.New("field has no path to write to")
	ErrHookPanic    = errors.New("edit hook panicked")
)

// RejectPolicy decides what a refused StartEditable returns.
type RejectPolicy int

const (
	// RejectIgnore makes refused transitions a silent no-op.
	RejectIgnore RejectPolicy = iota
	// RejectError returns ErrNotEditable or ErrEditLimit.
	RejectError
)

// Source gives the controller access to the committed entity and the
// resolved fields of the current render pass.
type Source interface {
	DataSource() entity.Entity
	SetDataSource(e entity.Entity)
	Field(key entity.Key) (schema.ResolvedField, bool)
}

// Transition describes one completed or refused state change.
type Transition struct {
	Key    entity.Key
	Action string
	From   State
	To     State
	Err    error
}

// Config configures a Controller.
type Config struct {
	// MaxActive caps concurrently edited fields. Zero means unlimited.
	MaxActive int
	Reject    RejectPolicy

	// Form holds in-progress values. Defaults to form.NewMemoryForm().
	Form form.Provider

	// OnSave runs after validation and before the commit. An error keeps
	// the field in edit mode.
	OnSave func(ctx context.Context, key entity.Key, value interface{}, record entity.Entity) error
	// OnDelete runs before the value is removed. An error aborts the delete.
	OnDelete func(ctx context.Context, key entity.Key, record entity.Entity) error

	OnCancel     func(key entity.Key)
	OnChange     func(editing []entity.Key)
	OnTransition func(t Transition)

	Logger zerolog.Logger
}

// Controller tracks which fields are in edit mode and commits edits.
type Controller struct {
	cfg    Config
	source Source
	form   form.Provider
	logger zerolog.Logger

	mu      sync.Mutex
	editing map[entity.Key]bool
	order   []entity.Key
	busy    map[entity.Key]bool
}

// NewController returns a controller operating on src.
func NewController(src Source, cfg Config) *Controller {
	fp := cfg.Form
	if fp == nil {
		fp = form.NewMemoryForm()
	}
	return &Controller{
		cfg:     cfg,
		source:  src,
		form:    fp,
		logger:  cfg.Logger.With().Str("component", "editable").Logger(),
		editing: make(map[entity.Key]bool),
		busy:    make(map[entity.Key]bool),
	}
}

// Form returns the form provider holding in-progress values.
func (c *Controller) Form() form.Provider { return c.form }

// IsEditing reports whether key is in edit mode.
func (c *Controller) IsEditing(key entity.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editing[key]
}

// State returns the state of key.
func (c *Controller) State(key entity.Key) State {
	if c.IsEditing(key) {
		return StateEditing
	}
	return StateRead
}

// EditingKeys returns the keys in edit mode in the order they started.
func (c *Controller) EditingKeys() []entity.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.Key, len(c.order))
	copy(out, c.order)
	return out
}

// StartEditable moves key to edit mode. Fields that are options, declared
// editable false, rejected by their predicate, or over the MaxActive cap
// are refused according to the reject policy. Starting a field that is
// already editing is a no-op.
func (c *Controller) StartEditable(key entity.Key) error {
	f, ok := c.source.Field(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	if f.IsOption || f.Schema == nil || !f.Schema.EditableFor(f.Value, c.source.DataSource(), f.Index) {
		return c.reject(key, ErrNotEditable)
	}

	c.mu.Lock()
	if c.editing[key] {
		c.mu.Unlock()
		return nil
	}
	if c.busy[key] {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrKeyBusy, key)
	}
	if c.cfg.MaxActive > 0 && len(c.order) >= c.cfg.MaxActive {
		c.mu.Unlock()
		return c.reject(key, ErrEditLimit)
	}
	c.editing[key] = true
	c.order = append(c.order, key)
	keys := c.snapshotLocked()
	c.mu.Unlock()

	c.form.Register(key, f.Value, f.Schema.Rules)
	c.logger.Debug().Str("field", key.String()).Msg("Field entered edit mode")
	c.notify(Transition{Key: key, Action: "start", From: StateRead, To: StateEditing}, keys)
	return nil
}

// SetValue records an in-progress value for an editing field.
func (c *Controller) SetValue(key entity.Key, value interface{}) error {
	if !c.IsEditing(key) {
		return fmt.Errorf("%w: %s", ErrNotEditing, key)
	}
	return c.form.SetValue(key, value)
}

// Cancel discards the in-progress value of key. The committed entity is
// untouched.
func (c *Controller) Cancel(key entity.Key) error {
	if err := c.acquire(key); err != nil {
		return err
	}
	c.form.Reset(key)
	c.form.Remove(key)
	keys := c.finish(key, true)

	if c.cfg.OnCancel != nil {
		c.cfg.OnCancel(key)
	}
	c.logger.Debug().Str("field", key.String()).Msg("Edit cancelled")
	c.notify(Transition{Key: key, Action: "cancel", From: StateEditing, To: StateRead}, keys)
	return nil
}

// Save validates the in-progress value of key and commits it to the data
// source. A validation failure returns a *form.ValidationError and leaves
// the field editing.
func (c *Controller) Save(ctx context.Context, key entity.Key) error {
	if err := c.acquire(key); err != nil {
		return err
	}

	released := false
	defer func() {
		if !released {
			c.finish(key, false)
		}
	}()

	commit, err := c.save(ctx, key)
	if err != nil {
		released = true
		c.finish(key, false)
		c.logger.Debug().Err(err).Str("field", key.String()).Msg("Save rejected")
		c.notify(Transition{Key: key, Action: "save", From: StateEditing, To: StateEditing, Err: err}, nil)
		return err
	}

	c.source.SetDataSource(commit)
	c.form.Remove(key)
	keys := c.finish(key, true)
	released = true
	c.logger.Debug().Str("field", key.String()).Msg("Edit saved")
	c.notify(Transition{Key: key, Action: "save", From: StateEditing, To: StateRead}, keys)
	return nil
}

func (c *Controller) save(ctx context.Context, key entity.Key) (_ entity.Entity, err error) {
	defer recoverHook("save", key, &err)
	if err := c.form.Validate(key); err != nil {
		return nil, err
	}
	f, ok := c.source.Field(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	if f.Path.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrNoPath, key)
	}
	value, _ := c.form.Value(key)
	record := entity.Set(c.source.DataSource(), f.Path, value)

	if c.cfg.OnSave != nil {
		if err := c.cfg.OnSave(ctx, key, value, record); err != nil {
			return nil, fmt.Errorf("save %s: %w", key, err)
		}
	}
	return record, nil
}

// Delete removes the value of an editing field from the data source.
func (c *Controller) Delete(ctx context.Context, key entity.Key) error {
	if err := c.acquire(key); err != nil {
		return err
	}

	released := false
	defer func() {
		if !released {
			c.finish(key, false)
		}
	}()

	commit, err := c.delete(ctx, key)
	if err != nil {
		released = true
		c.finish(key, false)
		c.notify(Transition{Key: key, Action: "delete", From: StateEditing, To: StateEditing, Err: err}, nil)
		return err
	}

	c.source.SetDataSource(commit)
	c.form.Remove(key)
	keys := c.finish(key, true)
	released = true
	c.logger.Debug().Str("field", key.String()).Msg("Field deleted")
	c.notify(Transition{Key: key, Action: "delete", From: StateEditing, To: StateRead}, keys)
	return nil
}

func (c *Controller) delete(ctx context.Context, key entity.Key) (_ entity.Entity, err error) {
	defer recoverHook("delete", key, &err)
	f, ok := c.source.Field(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	if f.Path.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrNoPath, key)
	}
	record := entity.Delete(c.source.DataSource(), f.Path)
	if c.cfg.OnDelete != nil {
		if err := c.cfg.OnDelete(ctx, key, record); err != nil {
			return nil, fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return record, nil
}

// recoverHook turns a panic in a save or delete hook into an error so the
// field stays editing.
func recoverHook(action string, key entity.Key, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s %s: %v", ErrHookPanic, action, key, r)
	}
}

// Reset leaves edit mode for every field without committing.
func (c *Controller) Reset() {
	c.mu.Lock()
	keys := c.order
	c.order = nil
	c.editing = make(map[entity.Key]bool)
	c.mu.Unlock()

	for _, k := range keys {
		c.form.Remove(k)
	}
	if len(keys) > 0 && c.cfg.OnChange != nil {
		c.cfg.OnChange(nil)
	}
}

// acquire marks key busy. The key must be editing and idle.
func (c *Controller) acquire(key entity.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.editing[key] {
		return fmt.Errorf("%w: %s", ErrNotEditing, key)
	}
	if c.busy[key] {
		return fmt.Errorf("%w: %s", ErrKeyBusy, key)
	}
	c.busy[key] = true
	return nil
}

// finish clears the busy mark and, when leave is set, the edit flag. It
// returns the editing keys after the change.
func (c *Controller) finish(key entity.Key, leave bool) []entity.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, key)
	if leave {
		delete(c.editing, key)
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i:i], c.order[i+1:]...)
				break
			}
		}
	}
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() []entity.Key {
	out := make([]entity.Key, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Controller) reject(key entity.Key, reason error) error {
	err := fmt.Errorf("%w: %s", reason, key)
	c.logger.Debug().Err(err).Msg("Edit refused")
	if c.cfg.OnTransition != nil {
		c.cfg.OnTransition(Transition{Key: key, Action: "start", From: StateRead, To: StateRead, Err: err})
	}
	if c.cfg.Reject == RejectError {
		return err
	}
	return nil
}

func (c *Controller) notify(t Transition, keys []entity.Key) {
	if c.cfg.OnTransition != nil {
		c.cfg.OnTransition(t)
	}
	if keys != nil && t.From != t.To && c.cfg.OnChange != nil {
		c.cfg.OnChange(keys)
	}
}
