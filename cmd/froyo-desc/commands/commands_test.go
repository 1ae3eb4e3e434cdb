package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/descriptions/pkg/editable"
	"github.com/openfroyo/descriptions/pkg/form"
)

const accountSchema = `name: account
title: Account
columns:
  - path: name
    title: Name
    rules: required
  - path: owner.email
    title: Owner
    rules: omitempty,email
  - path: api_key
    title: API key
  - path: status
    value_type: option
`

const accountEntity = `{"id": "acct-1", "name": "Acme", "owner": {"email": "ops@acme.io"}, "api_key": "sk-123", "status": "active"}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	jsonOutput, verbose = false, false

	var out bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRenderTable(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "account.yaml", accountSchema)
	ent := writeFile(t, dir, "acct.json", accountEntity)

	out, err := run(t, "render", schema, "--entity", ent)
	require.NoError(t, err)

	assert.Contains(t, out, "Account")
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "ops@acme.io")
	assert.Contains(t, out, "OPTION")
	assert.Contains(t, out, "sk-123")
}

func TestRenderJSON(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "account.yaml", accountSchema)
	ent := writeFile(t, dir, "acct.json", accountEntity)

	out, err := run(t, "render", schema, "--entity", ent, "--json")
	require.NoError(t, err)

	var view struct {
		Title   string `json:"title"`
		Body    []struct {
			Key string `json:"key"`
		} `json:"body"`
		Options []json.RawMessage `json:"options"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "Account", view.Title)
	assert.Len(t, view.Body, 3)
	assert.Len(t, view.Options, 1)
}

func TestRenderYAMLEntity(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "account.yaml", accountSchema)
	ent := writeFile(t, dir, "acct.yaml", "name: Acme\nowner:\n  email: yaml@acme.io\n")

	out, err := run(t, "render", schema, "--entity", ent)
	require.NoError(t, err)
	assert.Contains(t, out, "yaml@acme.io")
}

func TestRenderEditWritesEntity(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "account.yaml", accountSchema)
	ent := writeFile(t, dir, "acct.json", accountEntity)
	edited := filepath.Join(dir, "edited.json")

	out, err := run(t, "render", schema, "--entity", ent,
		"--set", `name="Beta"`,
		"--set", "owner.email=billing@beta.io",
		"--out", edited)
	require.NoError(t, err)
	assert.Contains(t, out, "Beta")

	e, err := readEntity(edited)
	require.NoError(t, err)
	assert.Equal(t, "Beta", e["name"])
	assert.Equal(t, map[string]interface{}{"email": "billing@beta.io"}, e["owner"])
}

func TestRenderEditErrors(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "account.yaml", accountSchema)
	ent := writeFile(t, dir, "acct.json", accountEntity)

	_, err := run(t, "render", schema, "--entity", ent, "--set", "owner.email=not-an-email")
	var verr *form.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = run(t, "render", schema, "--entity", ent, "--set", "name")
	assert.ErrorContains(t, err, "expected key=value")

	_, err = run(t, "render", schema, "--entity", ent, "--set", "status=gone")
	assert.ErrorIs(t, err, editable.ErrNotEditable)
}

func TestRenderPolicies(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "account.yaml", accountSchema)
	ent := writeFile(t, dir, "acct.json", accountEntity)

	out, err := run(t, "render", schema, "--entity", ent, "--user", "alice")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-123")

	out, err = run(t, "render", schema, "--entity", ent, "--roles", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "sk-123")

	_, err = run(t, "render", schema, "--entity", ent, "--roles", "viewer", "--set", "name=Beta")
	assert.ErrorIs(t, err, editable.ErrNotEditable)
}

func TestRenderMissingSchema(t *testing.T) {
	_, err := run(t, "render", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "account.yaml", accountSchema)
	writeFile(t, dir, "broken.yaml", "name: broken\ncolumns: [{path: a, mode: write}]\n")

	out, err := run(t, "validate", dir)
	assert.EqualError(t, err, "1 of 2 schema files invalid")
	assert.Contains(t, out, "ok    ")
	assert.Contains(t, out, "FAIL  ")

	out, err = run(t, "validate", filepath.Join(dir, "account.yaml"), "--json")
	require.NoError(t, err)
	var reports []schemaReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "account", reports[0].View)
	assert.Equal(t, 4, reports[0].Fields)
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	ent := writeFile(t, dir, "acct.json", accountEntity)
	db := filepath.Join(dir, "test.db")

	out, err := run(t, "seed", ent, "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "acct-1 version 1\n", out)

	out, err = run(t, "seed", ent, "--db", db, "--id", "acct-2")
	require.NoError(t, err)
	assert.Equal(t, "acct-2 version 1\n", out)

	store, err := openStore(context.Background(), db)
	require.NoError(t, err)
	defer store.Close()
	rec, err := store.Get(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec.Data["name"])

	noID := writeFile(t, dir, "noid.json", `{"name": "x"}`)
	_, err = run(t, "seed", noID, "--db", db)
	assert.ErrorContains(t, err, "entity id is required")
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want interface{}
	}{
		{`"quoted"`, "quoted"},
		{"plain", "plain"},
		{"42", float64(42)},
		{"true", true},
		{`{"a":1}`, map[string]interface{}{"a": float64(1)}},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseValue(tt.in), tt.in)
	}
}

func TestTelemetryProfiles(t *testing.T) {
	tests := []struct {
		profile  string
		level    string
		exporter string
		tracing  bool
	}{
		{"default", "info", "none", false},
		{"dev", "debug", "stdout", true},
		{"production", "info", "otlp", true},
	}
	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			cfg, err := telemetryConfig(tt.profile)
			require.NoError(t, err)
			cfg.Tracing.Endpoint = "localhost:4317"
			assert.Equal(t, tt.level, cfg.Logging.Level)
			assert.Equal(t, tt.exporter, cfg.Tracing.Exporter)
			assert.Equal(t, tt.tracing, cfg.Tracing.Enabled)
			assert.NoError(t, cfg.Validate())
		})
	}

	_, err := telemetryConfig("staging")
	assert.ErrorContains(t, err, "unknown profile")

	_, err = run(t, "serve", "--profile", "staging")
	assert.ErrorContains(t, err, "unknown profile")
}
