package editable

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/form"
	"github.com/openfroyo/descriptions/pkg/schema"
)

type memSource struct {
	mu      sync.Mutex
	items   []schema.FieldSchema
	data    entity.Entity
	commits int
}

func (s *memSource) DataSource() entity.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func (s *memSource) SetDataSource(e entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = e
	s.commits++
}

func (s *memSource) Field(key entity.Key) (schema.ResolvedField, bool) {
	fields, _ := schema.Normalize(s.items, s.DataSource())
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return schema.ResolvedField{}, false
}

var (
	nameKey = entity.NameKey(entity.Path{"name"})
	sizeKey = entity.NameKey(entity.Path{"size"})
	idKey   = entity.NameKey(entity.Path{"id"})
	lockKey = entity.NameKey(entity.Path{"locked"})
	optsKey = entity.IndexKey(4)
	ctx     = context.Background()
)

func newSource() *memSource {
	return &memSource{
		items: []schema.FieldSchema{
			{Path: entity.Path{"name"}, Rules: "required"},
			{Path: entity.Path{"size"}, Rules: "oneof=small large"},
			{Path: entity.Path{"id"}, Editable: schema.Bool(false)},
			{Path: entity.Path{"locked"}, EditableFunc: func(v interface{}, _ entity.Entity, _ int) bool {
				return v != true
			}},
			{Title: "ops", ValueType: schema.ValueTypeOption},
		},
		data: entity.Entity{"name": "web-01", "size": "small", "id": "h-1", "locked": true},
	}
}

func TestStartEditable(t *testing.T) {
	tests := []struct {
		name    string
		key     entity.Key
		policy  RejectPolicy
		wantErr error
		editing bool
	}{
		{"editable field", nameKey, RejectError, nil, true},
		{"editable false", idKey, RejectError, ErrNotEditable, false},
		{"predicate false", lockKey, RejectError, ErrNotEditable, false},
		{"option field", optsKey, RejectError, ErrNotEditable, false},
		{"unknown field", entity.NameKey(entity.Path{"nope"}), RejectError, ErrUnknownField, false},
		{"ignored refusal", idKey, RejectIgnore, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(newSource(), Config{Reject: tt.policy})
			err := c.StartEditable(tt.key)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.editing, c.IsEditing(tt.key))
		})
	}
}

func TestMaxActive(t *testing.T) {
	c := NewController(newSource(), Config{MaxActive: 1, Reject: RejectError})

	require.NoError(t, c.StartEditable(nameKey))
	require.NoError(t, c.StartEditable(nameKey), "restarting the same key is a no-op")
	err := c.StartEditable(sizeKey)
	assert.True(t, errors.Is(err, ErrEditLimit))
	assert.Equal(t, []entity.Key{nameKey}, c.EditingKeys())

	require.NoError(t, c.Cancel(nameKey))
	require.NoError(t, c.StartEditable(sizeKey))
	assert.Equal(t, StateEditing, c.State(sizeKey))
	assert.Equal(t, StateRead, c.State(nameKey))
}

func TestUnlimitedByDefault(t *testing.T) {
	c := NewController(newSource(), Config{})
	require.NoError(t, c.StartEditable(nameKey))
	require.NoError(t, c.StartEditable(sizeKey))
	assert.Equal(t, []entity.Key{nameKey, sizeKey}, c.EditingKeys())
}

func TestCancelLeavesDataUntouched(t *testing.T) {
	src := newSource()
	before := entity.Clone(src.data)
	c := NewController(src, Config{})

	require.NoError(t, c.StartEditable(nameKey))
	require.NoError(t, c.SetValue(nameKey, "web-99"))
	require.NoError(t, c.Cancel(nameKey))

	assert.Equal(t, before, src.DataSource())
	assert.Equal(t, 0, src.commits)
	assert.False(t, c.IsEditing(nameKey))
	_, ok := c.Form().Value(nameKey)
	assert.False(t, ok)
}

func TestSaveCommits(t *testing.T) {
	src := newSource()
	var saved interface{}
	var changes [][]entity.Key
	c := NewController(src, Config{
		OnSave: func(_ context.Context, key entity.Key, value interface{}, record entity.Entity) error {
			saved = value
			assert.Equal(t, "web-02", record["name"])
			return nil
		},
		OnChange: func(keys []entity.Key) { changes = append(changes, keys) },
	})

	require.NoError(t, c.StartEditable(nameKey))
	require.NoError(t, c.SetValue(nameKey, "web-02"))
	require.NoError(t, c.Save(ctx, nameKey))

	assert.Equal(t, "web-02", saved)
	assert.Equal(t, "web-02", src.DataSource()["name"])
	assert.Equal(t, 1, src.commits)
	assert.False(t, c.IsEditing(nameKey))
	assert.Equal(t, [][]entity.Key{{nameKey}, {}}, changes)
}

func TestSaveValidationFailureStaysEditing(t *testing.T) {
	src := newSource()
	c := NewController(src, Config{})

	require.NoError(t, c.StartEditable(sizeKey))
	require.NoError(t, c.SetValue(sizeKey, "medium"))
	err := c.Save(ctx, sizeKey)

	require.Error(t, err)
	assert.True(t, form.IsValidationError(err))
	assert.True(t, c.IsEditing(sizeKey))
	assert.Equal(t, "small", src.DataSource()["size"])
	assert.Equal(t, 0, src.commits)

	require.NoError(t, c.SetValue(sizeKey, "large"))
	require.NoError(t, c.Save(ctx, sizeKey))
	assert.Equal(t, "large", src.DataSource()["size"])
}

func TestSaveHookErrorStaysEditing(t *testing.T) {
	src := newSource()
	boom := errors.New("store unavailable")
	c := NewController(src, Config{
		OnSave: func(context.Context, entity.Key, interface{}, entity.Entity) error { return boom },
	})

	require.NoError(t, c.StartEditable(nameKey))
	err := c.Save(ctx, nameKey)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, c.IsEditing(nameKey))
	assert.Equal(t, 0, src.commits)
}

func TestSaveKindMismatchStaysEditing(t *testing.T) {
	ageKey := entity.NameKey(entity.Path{"age"})
	src := &memSource{
		items: []schema.FieldSchema{{Path: entity.Path{"age"}, Rules: "min=3"}},
		data:  entity.Entity{"age": 4.0},
	}
	c := NewController(src, Config{})

	require.NoError(t, c.StartEditable(ageKey))
	require.NoError(t, c.SetValue(ageKey, true))

	var err error
	require.NotPanics(t, func() { err = c.Save(ctx, ageKey) })
	assert.True(t, form.IsValidationError(err))
	assert.True(t, c.IsEditing(ageKey))

	require.NoError(t, c.SetValue(ageKey, 5.0))
	require.NoError(t, c.Save(ctx, ageKey))
	assert.Equal(t, 5.0, src.DataSource()["age"])
}

func TestHookPanicStaysEditing(t *testing.T) {
	src := newSource()
	c := NewController(src, Config{
		OnSave:   func(context.Context, entity.Key, interface{}, entity.Entity) error { panic("save hook") },
		OnDelete: func(context.Context, entity.Key, entity.Entity) error { panic("delete hook") },
	})

	require.NoError(t, c.StartEditable(nameKey))
	require.NoError(t, c.SetValue(nameKey, "web-02"))

	err := c.Save(ctx, nameKey)
	assert.ErrorIs(t, err, ErrHookPanic)
	assert.ErrorContains(t, err, "save hook")
	assert.True(t, c.IsEditing(nameKey))

	assert.ErrorIs(t, c.Delete(ctx, nameKey), ErrHookPanic)
	assert.True(t, c.IsEditing(nameKey))
	assert.Equal(t, "web-01", src.DataSource()["name"])

	// The key is free again.
	require.NoError(t, c.Cancel(nameKey))
	assert.False(t, c.IsEditing(nameKey))
}

type panickySource struct{ *memSource }

func (panickySource) SetDataSource(entity.Entity) { panic("commit failed") }

func TestCommitPanicReleasesKey(t *testing.T) {
	src := panickySource{newSource()}
	c := NewController(src, Config{})

	require.NoError(t, c.StartEditable(nameKey))
	require.NoError(t, c.SetValue(nameKey, "web-02"))
	assert.Panics(t, func() { _ = c.Save(ctx, nameKey) })

	assert.True(t, c.IsEditing(nameKey))
	require.NoError(t, c.Cancel(nameKey))
}

func TestDelete(t *testing.T) {
	src := newSource()
	var deleted entity.Key
	c := NewController(src, Config{
		OnDelete: func(_ context.Context, key entity.Key, record entity.Entity) error {
			deleted = key
			_, ok := record["size"]
			assert.False(t, ok)
			return nil
		},
	})

	assert.True(t, errors.Is(c.Delete(ctx, sizeKey), ErrNotEditing))

	require.NoError(t, c.StartEditable(sizeKey))
	require.NoError(t, c.Delete(ctx, sizeKey))
	assert.Equal(t, sizeKey, deleted)
	_, ok := src.DataSource()["size"]
	assert.False(t, ok)
	assert.False(t, c.IsEditing(sizeKey))
}

func TestTransitionsRequireEditing(t *testing.T) {
	c := NewController(newSource(), Config{})
	assert.True(t, errors.Is(c.Cancel(nameKey), ErrNotEditing))
	assert.True(t, errors.Is(c.Save(ctx, nameKey), ErrNotEditing))
	assert.True(t, errors.Is(c.SetValue(nameKey, "x"), ErrNotEditing))
}

func TestConcurrentSaveIsExclusive(t *testing.T) {
	src := newSource()
	release := make(chan struct{})
	entered := make(chan struct{})
	c := NewController(src, Config{
		OnSave: func(context.Context, entity.Key, interface{}, entity.Entity) error {
			close(entered)
			<-release
			return nil
		},
	})
	require.NoError(t, c.StartEditable(nameKey))

	done := make(chan error, 1)
	go func() { done <- c.Save(ctx, nameKey) }()
	<-entered

	assert.True(t, errors.Is(c.Save(ctx, nameKey), ErrKeyBusy))
	assert.True(t, errors.Is(c.Cancel(nameKey), ErrKeyBusy))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, src.commits)
}

func TestTransitionHook(t *testing.T) {
	var got []Transition
	c := NewController(newSource(), Config{OnTransition: func(tr Transition) { got = append(got, tr) }})

	require.NoError(t, c.StartEditable(nameKey))
	require.NoError(t, c.StartEditable(idKey))
	require.NoError(t, c.Cancel(nameKey))

	require.Len(t, got, 3)
	assert.Equal(t, "start", got[0].Action)
	assert.NoError(t, got[0].Err)
	assert.True(t, errors.Is(got[1].Err, ErrNotEditable))
	assert.Equal(t, "cancel", got[2].Action)
}

func TestReset(t *testing.T) {
	c := NewController(newSource(), Config{})
	require.NoError(t, c.StartEditable(nameKey))
	require.NoError(t, c.StartEditable(sizeKey))
	c.Reset()
	assert.Empty(t, c.EditingKeys())
}
