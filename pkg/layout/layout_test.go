package layout

import (
	"testing"

	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/schema"
)

type item struct {
	name   string
	option bool
}

func (i item) Option() bool { return i.option }

func names(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name        string
		items       []item
		wantBody    []string
		wantOptions []string
	}{
		{
			name:        "empty",
			wantBody:    []string{},
			wantOptions: []string{},
		},
		{
			name:        "mixed keeps order",
			items:       []item{{"a", false}, {"edit", true}, {"b", false}, {"copy", true}, {"c", false}},
			wantBody:    []string{"a", "b", "c"},
			wantOptions: []string{"edit", "copy"},
		},
		{
			name:        "options only",
			items:       []item{{"x", true}},
			wantBody:    []string{},
			wantOptions: []string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Partition(tt.items)
			if !equal(names(got.Body), tt.wantBody) {
				t.Errorf("Body = %v, want %v", names(got.Body), tt.wantBody)
			}
			if !equal(names(got.Options), tt.wantOptions) {
				t.Errorf("Options = %v, want %v", names(got.Options), tt.wantOptions)
			}
			if got.Len() != len(tt.items) {
				t.Errorf("Len() = %d, want %d", got.Len(), len(tt.items))
			}
		})
	}
}

func TestPartitionResolvedFields(t *testing.T) {
	items := []schema.FieldSchema{
		{Path: entity.Path{"name"}},
		{Title: "actions", ValueType: schema.ValueTypeOption},
		{Path: entity.Path{"size"}},
	}
	fields, err := schema.Normalize(items, entity.Entity{})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	got := Partition(fields)
	for _, f := range got.Body {
		if f.IsOption {
			t.Errorf("option field %s in body", f.Key)
		}
	}
	if len(got.Options) != 1 || !got.Options[0].IsOption {
		t.Fatalf("Options = %+v, want the single option field", got.Options)
	}
}
