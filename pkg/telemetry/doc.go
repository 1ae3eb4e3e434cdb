// Package telemetry provides observability instrumentation for descriptions
// views.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and event publishing behind one
// Telemetry value.
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// DevelopmentConfig and ProductionConfig are starting points for the
// serve profiles.
//
// Components that are not configured can use NewNop, which never fails and
// records nothing.
//
// # Logging
//
// Loggers carry view, entity, field and session fields:
//
//	logger := tel.Logger.NewComponentLogger("sessions").WithView("account").WithEntityID(id)
//	logger.Info("Session created")
//
// # Tracing
//
// Fetches, render passes and edit transitions each get a span:
//
//	ctx, span := tel.Tracer.StartFetchSpan(ctx, "account", fingerprint, token)
//	defer span.End()
//
// # Metrics
//
// Metrics are namespaced with froyo_desc by default:
//
//   - fetches_started_total, fetches_completed_total, fetch_duration_seconds
//   - stale_responses_discarded_total
//   - render_duration_seconds, fields_rendered_total, configuration_errors_total
//   - edit_transitions_total, validation_failures_total, active_edits
//   - errors_by_class_total, active_sessions
//
// A Metrics built from a disabled config accepts every call and records
// nothing.
//
// # Events
//
// The EventPublisher delivers fetch, edit, configuration and schema events
// to subscribers. Live view sessions subscribe with FilterByEntity.
//
//	unsubscribe := tel.Events.Subscribe(func(e telemetry.Event) {
//	    push(e)
//	}, telemetry.FilterByEntity("account", id))
//	defer unsubscribe()
package telemetry
