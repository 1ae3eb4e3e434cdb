package descriptions_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/descriptions/pkg/descriptions"
	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/schema"
)

func ExampleNew() {
	d := descriptions.New(descriptions.Config{
		Title: "Account",
		Columns: []schema.FieldSchema{
			{Path: entity.Path{"name"}, Title: "Name", Order: 2},
			{Path: entity.Path{"plan"}, Title: "Plan", Order: 1},
			{Path: entity.Path{"status"}, ValueType: schema.ValueTypeOption},
		},
		DataSource: entity.Entity{"name": "Acme", "plan": "pro", "status": "active"},
	})

	view := d.Render(context.Background())
	for _, it := range view.Body {
		fmt.Printf("%s: %s\n", it.Title, it.Presentation.Text)
	}
	fmt.Println(len(view.Options))
	// Output:
	// Name: Acme
	// Plan: pro
	// 1
}

func ExampleDescriptions_Save() {
	ctx := context.Background()
	key := entity.NameKey(entity.Path{"plan"})

	d := descriptions.New(descriptions.Config{
		Columns:    []schema.FieldSchema{{Path: entity.Path{"plan"}, Rules: "oneof=free pro"}},
		DataSource: entity.Entity{"plan": "free"},
		Editable:   &descriptions.EditableConfig{},
	})

	_ = d.StartEditable(key)
	_ = d.SetValue(key, "enterprise")
	fmt.Println(d.Save(ctx, key) != nil)

	_ = d.SetValue(key, "pro")
	fmt.Println(d.Save(ctx, key), d.DataSource()["plan"])
	// Output:
	// true
	// <nil> pro
}
