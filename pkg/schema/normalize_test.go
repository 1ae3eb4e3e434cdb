package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/descriptions/pkg/entity"
)

type fakeLookup map[ValueType]bool

func (f fakeLookup) Has(vt ValueType) bool { return f[vt] }

func keys(fields []ResolvedField) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Key.String()
	}
	return out
}

func TestNormalizeReverseDeclarationOrder(t *testing.T) {
	items := []FieldSchema{
		{Path: entity.Path{"a"}},
		{Path: entity.Path{"b"}},
		{Path: entity.Path{"c"}},
		{Path: entity.Path{"d"}},
	}

	fields, err := Normalize(items, entity.Entity{})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, keys(fields))
}

func TestNormalizeExplicitOrder(t *testing.T) {
	tests := []struct {
		name  string
		items []FieldSchema
		want  []string
	}{
		{
			name: "all ordered",
			items: []FieldSchema{
				{Path: entity.Path{"a"}, Order: 1},
				{Path: entity.Path{"b"}, Order: 3},
				{Path: entity.Path{"c"}, Order: 2},
			},
			want: []string{"b", "c", "a"},
		},
		{
			name: "ties keep descending position",
			items: []FieldSchema{
				{Path: entity.Path{"a"}, Order: 5},
				{Path: entity.Path{"b"}, Order: 5},
				{Path: entity.Path{"c"}, Order: 9},
			},
			want: []string{"c", "b", "a"},
		},
		{
			name: "missing order counts as zero",
			items: []FieldSchema{
				{Path: entity.Path{"a"}},
				{Path: entity.Path{"b"}, Order: 1},
				{Path: entity.Path{"c"}},
				{Path: entity.Path{"d"}, Order: -1},
			},
			want: []string{"b", "c", "a", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := Normalize(tt.items, entity.Entity{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(fields))
		})
	}
}

func TestNormalizeDropsHiddenAndStructural(t *testing.T) {
	items := []FieldSchema{
		{Path: entity.Path{"idx"}, ValueType: ValueTypeIndex},
		{Path: entity.Path{"border"}, ValueType: ValueTypeIndexBorder},
		{Path: entity.Path{"secret"}, Hide: true},
		{Path: entity.Path{"name"}},
	}

	fields, err := Normalize(items, entity.Entity{"name": "x", "secret": "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, keys(fields))

	fields, err = Normalize(items, entity.Entity{}, WithHidden())
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "secret", fields[1].Key.String())
	assert.False(t, fields[1].Visible)
	assert.True(t, fields[0].Visible)
}

func TestNormalizeValues(t *testing.T) {
	e := entity.Entity{
		"name":  "web-01",
		"owner": map[string]interface{}{"team": "platform"},
		"empty": nil,
	}
	items := []FieldSchema{
		{Path: entity.Path{"name"}, Title: "Name"},
		{Path: entity.ParsePath("owner.team"), TitleFunc: func(*FieldSchema) string { return "Team" }},
		{Path: entity.Path{"missing"}, Children: "n/a"},
		{Path: entity.Path{"empty"}, Children: "-"},
		{Title: "Static", Children: "literal"},
		{
			Path: entity.Path{"name"},
			RenderText: func(v interface{}, _ entity.Entity, i int, _ Actions) interface{} {
				return fmt.Sprintf("%v@%d", v, i)
			},
		},
	}

	fields, err := Normalize(items, e)
	// the second "name" entry is a duplicate
	require.Error(t, err)

	byIndex := map[int]ResolvedField{}
	for _, f := range fields {
		byIndex[f.Index] = f
	}
	assert.Equal(t, "web-01", byIndex[0].Value)
	assert.Equal(t, "Name", byIndex[0].Title)
	assert.Equal(t, "platform", byIndex[1].Value)
	assert.Equal(t, "Team", byIndex[1].Title)
	assert.Equal(t, "n/a", byIndex[2].Value)
	assert.Equal(t, "-", byIndex[3].Value)
	assert.Equal(t, "literal", byIndex[4].Value)
	assert.Equal(t, entity.IndexKey(4), byIndex[4].Key)
	assert.Equal(t, "web-01@5", byIndex[5].Value)
	assert.Equal(t, entity.IndexKey(5), byIndex[5].Key)
}

func TestNormalizeKeysUnique(t *testing.T) {
	items := []FieldSchema{
		{Path: entity.Path{"a"}},
		{Path: entity.Path{"a"}},
		{},
		{},
	}
	fields, err := Normalize(items, entity.Entity{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicatePath))

	seen := map[entity.Key]bool{}
	for _, f := range fields {
		assert.False(t, seen[f.Key], "duplicate key %s", f.Key)
		seen[f.Key] = true
	}
	assert.Len(t, fields, 4)
}

func TestNormalizeValueTypeFunc(t *testing.T) {
	items := []FieldSchema{{
		Path: entity.Path{"amount"},
		ValueTypeFunc: func(e entity.Entity) ValueType {
			if e["currency"] != nil {
				return ValueTypeMoney
			}
			return ValueTypeDigit
		},
	}}

	fields, err := Normalize(items, entity.Entity{"amount": 3, "currency": "EUR"})
	require.NoError(t, err)
	assert.Equal(t, ValueTypeMoney, fields[0].ValueType)

	fields, err = Normalize(items, entity.Entity{"amount": 3})
	require.NoError(t, err)
	assert.Equal(t, ValueTypeDigit, fields[0].ValueType)
}

func TestNormalizeUnknownValueTypeDegrades(t *testing.T) {
	items := []FieldSchema{
		{Path: entity.Path{"a"}, ValueType: "sparkline"},
		{Path: entity.Path{"b"}, ValueType: ValueTypeText},
	}

	fields, err := Normalize(items, entity.Entity{"a": 1}, WithRegistry(fakeLookup{ValueTypeText: true}))
	require.Error(t, err)
	require.True(t, IsConfigurationError(err))
	assert.True(t, errors.Is(err, ErrUnknownValueType))

	cfgErrs := ConfigurationErrors(err)
	require.Len(t, cfgErrs, 1)
	assert.Equal(t, ValueType("sparkline"), cfgErrs[0].ValueType)

	require.Len(t, fields, 2)
	for _, f := range fields {
		assert.Equal(t, ValueTypeText, f.ValueType)
	}
}

func TestNormalizeOptionFlag(t *testing.T) {
	items := []FieldSchema{
		{Title: "actions", ValueType: ValueTypeOption},
		{Path: entity.Path{"name"}},
	}
	fields, err := Normalize(items, entity.Entity{})
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.False(t, fields[0].IsOption)
	assert.True(t, fields[1].IsOption)
}

func TestEditableFor(t *testing.T) {
	tests := []struct {
		name  string
		field FieldSchema
		want  bool
	}{
		{"default", FieldSchema{}, true},
		{"explicit true", FieldSchema{Editable: Bool(true)}, true},
		{"explicit false", FieldSchema{Editable: Bool(false)}, false},
		{"predicate false", FieldSchema{EditableFunc: func(interface{}, entity.Entity, int) bool { return false }}, false},
		{"predicate true", FieldSchema{EditableFunc: func(interface{}, entity.Entity, int) bool { return true }}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.field.EditableFor(nil, nil, 0))
		})
	}
}

func TestValidate(t *testing.T) {
	err := Validate([]FieldSchema{{Path: entity.Path{"a"}, ValueType: "nope", Hide: true}}, fakeLookup{})
	assert.True(t, IsConfigurationError(err))
}
