package telemetry_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/descriptions/pkg/telemetry"
)

func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"
	cfg.Metrics.Enabled = false

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	tel.Logger.NewComponentLogger("server").Info("Application started")
}

func Example_profiles() {
	for _, cfg := range []*telemetry.Config{telemetry.DevelopmentConfig(), telemetry.ProductionConfig()} {
		fmt.Println(cfg.Environment, cfg.Logging.Level, cfg.Tracing.Exporter)
	}
	// Output:
	// development debug stdout
	// production info otlp
}

func Example_events() {
	cfg := telemetry.DefaultConfig().Events
	cfg.EnableAsync = false

	events, err := telemetry.NewEventPublisher(cfg)
	if err != nil {
		panic(err)
	}

	unsubscribe := events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type, e.Field)
	}, telemetry.FilterByEntity("account", "acct-1"))
	defer unsubscribe()

	_ = events.PublishEdit("account", "acct-1", "name", "save", nil)
	_ = events.PublishEdit("account", "acct-2", "name", "save", nil)
	// Output: edit.saved name
}
