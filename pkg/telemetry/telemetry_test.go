package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"disabled", func(c *Config) { *c = *DisabledConfig() }, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}, true},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, true},
		{"sampling out of range", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"empty event buffer", func(c *Config) { c.Events.BufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig().Logging
	cfg.Format = "json"

	logger := NewLoggerTo(&buf, cfg).
		NewComponentLogger("fetch").
		WithView("account").
		WithEntityID("acct-1").
		WithFieldKey("name")
	logger.Info("loaded")

	out := buf.String()
	for _, want := range []string{`"component":"fetch"`, `"view":"account"`, `"entity_id":"acct-1"`, `"field":"name"`, `"message":"loaded"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig().Logging
	cfg.Format = "json"
	cfg.Level = "warn"

	logger := NewLoggerTo(&buf, cfg)
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message written at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message missing")
	}
}

func TestMetricsHandler(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordFetchStarted("account")
	m.RecordFetchCompleted("account", "success", 20*time.Millisecond)
	m.RecordStaleDiscarded("account")
	m.RecordFieldRendered("money", "read")
	m.RecordConfigError("bogus")
	m.RecordEditTransition("save", "ok")
	m.SetActiveEdits("account", 1)
	m.SetActiveSessions(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`froyo_desc_fetches_started_total{view="account"} 1`,
		`froyo_desc_fetches_completed_total{status="success",view="account"} 1`,
		`froyo_desc_stale_responses_discarded_total{view="account"} 1`,
		`froyo_desc_fields_rendered_total{mode="read",value_type="money"} 1`,
		`froyo_desc_errors_by_class_total{class="configuration"} 1`,
		`froyo_desc_active_sessions 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(DisabledConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordFetchStarted("account")
	m.RecordEditTransition("save", "ok")
	m.SetActiveSessions(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("disabled metrics handler status = %d, want 404", rec.Code)
	}
}

func TestEventPublisherSync(t *testing.T) {
	cfg := DefaultConfig().Events
	cfg.EnableAsync = false
	ep, err := NewEventPublisher(cfg)
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}

	var got []Event
	unsubscribe := ep.Subscribe(func(e Event) { got = append(got, e) }, FilterByLevel(EventLevelWarning))

	_ = ep.PublishEdit("account", "acct-1", "name", "save", nil)
	_ = ep.PublishEdit("account", "acct-1", "name", "start", errors.New("limit"))
	_ = ep.PublishFetch("account", "acct-1", time.Millisecond, errors.New("boom"))

	if len(got) != 2 {
		t.Fatalf("received %d events, want 2", len(got))
	}
	if got[0].Type != EventTypeEditRejected || got[1].Type != EventTypeFetchFailed {
		t.Errorf("event types = %s, %s", got[0].Type, got[1].Type)
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Error("event not stamped")
	}

	unsubscribe()
	_ = ep.PublishFetch("account", "acct-1", time.Millisecond, errors.New("boom"))
	if len(got) != 2 {
		t.Error("event delivered after unsubscribe")
	}
}

func TestEventPublisherAsync(t *testing.T) {
	cfg := DefaultConfig().Events
	cfg.FlushInterval = 10 * time.Millisecond
	ep, err := NewEventPublisher(cfg)
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}

	var mu sync.Mutex
	var types []string
	ep.Subscribe(func(e Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	}, FilterByType(EventTypeSchemaReloaded))

	_ = ep.PublishSchemaReloaded("account", "account.yaml")
	_ = ep.PublishDataSourceChanged("account", "acct-1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(types) != 1 || types[0] != EventTypeSchemaReloaded {
		t.Errorf("delivered types = %v", types)
	}

	if err := ep.Publish(Event{Type: "late"}); !errors.Is(err, ErrPublisherStopped) {
		t.Errorf("Publish after Shutdown error = %v", err)
	}
}
