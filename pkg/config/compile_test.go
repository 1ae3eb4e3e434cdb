package config

import (
	"context"
	"errors"
	"testing"

	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/schema"
	"github.com/rs/zerolog"
)

func compileInline(t *testing.T, content string) (*CompiledView, error) {
	t.Helper()
	pv := NewParser().ParseInline(context.Background(), content)
	if !pv.Valid() {
		t.Fatalf("unexpected validation errors: %v", pv.Errors)
	}
	return NewCompiler(nil, zerolog.Nop()).Compile(pv)
}

func TestCompiler_Literals(t *testing.T) {
	cv, err := compileInline(t, `
name:   "account"
title:  "Account"
manual: true
params: {id: "acct-1"}
columns: [
	{path: "owner.name", title: "Owner", order: 3, rules: "required", span: 2},
	{path: "status", value_type: "select", mode: "edit", value_enum: {open: {text: "Open", status: "success"}}},
	{title: "Note", children: "n/a", hide: true, editable: false},
]
`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if cv.Name != "account" || cv.Title != "Account" || !cv.Manual {
		t.Errorf("unexpected view header: %+v", cv)
	}
	if cv.Params["id"] != "acct-1" {
		t.Errorf("expected params id, got %v", cv.Params)
	}
	if len(cv.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(cv.Columns))
	}

	owner := cv.Columns[0]
	if !owner.Path.Equal(entity.Path{"owner", "name"}) {
		t.Errorf("expected path owner.name, got %v", owner.Path)
	}
	if owner.Order != 3 || owner.Rules != "required" || owner.Span != 2 {
		t.Errorf("unexpected owner column: %+v", owner)
	}

	status := cv.Columns[1]
	if status.ValueType != schema.ValueTypeSelect || status.Mode != schema.ModeEdit {
		t.Errorf("unexpected status column: %+v", status)
	}
	if status.ValueEnum["open"].Text != "Open" {
		t.Errorf("expected value enum, got %v", status.ValueEnum)
	}

	note := cv.Columns[2]
	if !note.Path.IsZero() || note.Children != "n/a" || !note.Hide {
		t.Errorf("unexpected note column: %+v", note)
	}
	if note.EditableFor(nil, nil, 2) {
		t.Error("expected note to be non-editable")
	}
}

func TestCompiler_Expressions(t *testing.T) {
	cv, err := compileInline(t, `
columns: [{
	path:             "balance"
	title:            "Balance"
	value_type_expr:  "\"money\" if entity[\"currency\"] == \"USD\" else \"digit\""
	editable_expr:    "value < 1000"
	render_text_expr: "value * 2"
	title_expr:       "title + \" (\" + path + \")\""
}]
`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	f := cv.Columns[0]
	usd := entity.Entity{"balance": 10, "currency": "USD"}

	if got := f.ResolveValueType(usd); got != schema.ValueTypeMoney {
		t.Errorf("ResolveValueType() = %s, want money", got)
	}
	if got := f.ResolveValueType(entity.Entity{"currency": "EUR"}); got != schema.ValueTypeDigit {
		t.Errorf("ResolveValueType() = %s, want digit", got)
	}
	if !f.EditableFor(10, usd, 0) {
		t.Error("expected small balance to be editable")
	}
	if f.EditableFor(5000, usd, 0) {
		t.Error("expected large balance to be read-only")
	}
	if got := f.RenderText(10, usd, 0, nil); got != int64(20) {
		t.Errorf("RenderText() = %v, want 20", got)
	}
	if got := f.ResolveTitle(); got != "Balance (balance)" {
		t.Errorf("ResolveTitle() = %q", got)
	}
}

func TestCompiler_ExpressionFallbacks(t *testing.T) {
	cv, err := compileInline(t, `
columns: [{
	path:             "a"
	title:            "A"
	value_type:       "text"
	value_type_expr:  "entity[\"missing\"]"
	editable_expr:    "undefined_name"
	render_text_expr: "value.nope()"
}]
`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	f := cv.Columns[0]
	e := entity.Entity{"a": "x"}
	if got := f.ResolveValueType(e); got != schema.ValueTypeText {
		t.Errorf("ResolveValueType() = %s, want text fallback", got)
	}
	if f.EditableFor("x", e, 0) {
		t.Error("expected failing editable_expr to disable editing")
	}
	if got := f.RenderText("x", e, 0, nil); got != "x" {
		t.Errorf("RenderText() = %v, want raw value", got)
	}
}

func TestCompiler_SyntaxErrors(t *testing.T) {
	pv := NewParser().ParseInline(context.Background(), `
columns: [
	{path: "a", editable_expr: "value !="},
	{path: "b", title_expr: "title +"},
]
`)
	_, err := NewCompiler(nil, zerolog.Nop()).Compile(pv)

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(verrs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(verrs), verrs)
	}
	if verrs[0].Path != "columns.0.editable_expr" || verrs[1].Path != "columns.1.title_expr" {
		t.Errorf("unexpected paths: %s, %s", verrs[0].Path, verrs[1].Path)
	}
}

func TestCompiler_InvalidView(t *testing.T) {
	pv := NewParser().ParseInline(context.Background(), `columns: [{mode: "write"}]`)
	if _, err := NewCompiler(nil, zerolog.Nop()).Compile(pv); err == nil {
		t.Error("expected error for invalid view")
	}
}
