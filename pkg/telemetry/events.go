package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notable change in a descriptions view.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`

	// Source identifies the component that emitted the event.
	Source string `json:"source"`

	View     string `json:"view,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
	Field    string `json:"field,omitempty"`

	Message string `json:"message"`
	Level   string `json:"level"`

	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeFetchCompleted     = "fetch.completed"
	EventTypeFetchFailed        = "fetch.failed"
	EventTypeFetchDiscarded     = "fetch.discarded"
	EventTypeDataSourceChanged  = "datasource.changed"
	EventTypeEditStarted        = "edit.started"
	EventTypeEditSaved          = "edit.saved"
	EventTypeEditCancelled      = "edit.cancelled"
	EventTypeEditDeleted        = "edit.deleted"
	EventTypeEditRejected       = "edit.rejected"
	EventTypeConfigurationError = "config.error"
	EventTypeSchemaReloaded     = "schema.reloaded"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// ErrPublisherStopped is returned by Publish after Shutdown.
var ErrPublisherStopped = errors.New("event publisher stopped")

// ErrBufferFull is returned when the async buffer cannot take an event.
var ErrBufferFull = errors.New("event buffer full, event dropped")

// EventSubscriber handles events.
type EventSubscriber func(event Event)

// EventFilter decides whether an event is delivered.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers map[string]subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a publisher. A disabled config yields a
// publisher that drops everything.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make(map[string]subscriberEntry),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish stamps and delivers an event.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return ErrPublisherStopped
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return ErrBufferFull
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishFetch publishes the outcome of a data source request.
func (ep *EventPublisher) PublishFetch(view, entityID string, duration time.Duration, err error) error {
	if err != nil {
		return ep.Publish(Event{
			Type:     EventTypeFetchFailed,
			Source:   "fetch",
			View:     view,
			EntityID: entityID,
			Message:  fmt.Sprintf("Request for %s failed: %v", view, err),
			Level:    EventLevelError,
			Data:     map[string]interface{}{"duration": duration.Seconds(), "error": err.Error()},
		})
	}
	return ep.Publish(Event{
		Type:     EventTypeFetchCompleted,
		Source:   "fetch",
		View:     view,
		EntityID: entityID,
		Message:  fmt.Sprintf("Request for %s completed", view),
		Data:     map[string]interface{}{"duration": duration.Seconds()},
	})
}

// PublishFetchDiscarded publishes a superseded response.
func (ep *EventPublisher) PublishFetchDiscarded(view, entityID string, token uint64) error {
	return ep.Publish(Event{
		Type:     EventTypeFetchDiscarded,
		Source:   "fetch",
		View:     view,
		EntityID: entityID,
		Message:  fmt.Sprintf("Response %d for %s superseded", token, view),
		Level:    EventLevelInfo,
		Data:     map[string]interface{}{"token": token},
	})
}

// PublishDataSourceChanged publishes a committed entity change.
func (ep *EventPublisher) PublishDataSourceChanged(view, entityID string) error {
	return ep.Publish(Event{
		Type:     EventTypeDataSourceChanged,
		Source:   "descriptions",
		View:     view,
		EntityID: entityID,
		Message:  fmt.Sprintf("Data source of %s changed", view),
	})
}

// PublishEdit publishes an edit transition. A non-nil err publishes a
// rejection.
func (ep *EventPublisher) PublishEdit(view, entityID, field, action string, err error) error {
	if err != nil {
		return ep.Publish(Event{
			Type:     EventTypeEditRejected,
			Source:   "editable",
			View:     view,
			EntityID: entityID,
			Field:    field,
			Message:  fmt.Sprintf("%s of %s rejected: %v", action, field, err),
			Level:    EventLevelWarning,
			Data:     map[string]interface{}{"action": action, "error": err.Error()},
		})
	}

	eventType := map[string]string{
		"start":  EventTypeEditStarted,
		"save":   EventTypeEditSaved,
		"cancel": EventTypeEditCancelled,
		"delete": EventTypeEditDeleted,
	}[action]
	if eventType == "" {
		eventType = "edit." + action
	}
	return ep.Publish(Event{
		Type:     eventType,
		Source:   "editable",
		View:     view,
		EntityID: entityID,
		Field:    field,
		Message:  fmt.Sprintf("Field %s: %s", field, action),
		Data:     map[string]interface{}{"action": action},
	})
}

// PublishConfigurationError publishes a degraded field.
func (ep *EventPublisher) PublishConfigurationError(view, field, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeConfigurationError,
		Source:  "schema",
		View:    view,
		Field:   field,
		Message: reason,
		Level:   EventLevelWarning,
	})
}

// PublishSchemaReloaded publishes a schema file reload.
func (ep *EventPublisher) PublishSchemaReloaded(view, path string) error {
	return ep.Publish(Event{
		Type:    EventTypeSchemaReloaded,
		Source:  "config",
		View:    view,
		Message: fmt.Sprintf("Schema %s reloaded from %s", view, path),
		Data:    map[string]interface{}{"path": path},
	})
}

// Subscribe registers a subscriber and returns a function that removes it.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) func() {
	if ep == nil || !ep.config.Enabled {
		return func() {}
	}

	id := uuid.New().String()
	ep.mu.Lock()
	ep.subscribers[id] = subscriberEntry{subscriber: subscriber, filter: filter}
	ep.mu.Unlock()

	return func() {
		ep.mu.Lock()
		delete(ep.subscribers, id)
		ep.mu.Unlock()
	}
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.filters = append(ep.filters, filter)
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	interval := ep.config.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					ep.flushBatch(batch)
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent calls subscribers synchronously in the delivering goroutine.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	entries := make([]subscriberEntry, 0, len(ep.subscribers))
	for _, entry := range ep.subscribers {
		entries = append(entries, entry)
	}
	ep.mu.RUnlock()

	for _, entry := range entries {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel passes events at or above minLevel.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	minLevelValue := levels[minLevel]
	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType passes events of the given types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByEntity passes events of one view and entity.
func FilterByEntity(view, entityID string) EventFilter {
	return func(event Event) bool {
		return event.View == view && event.EntityID == entityID
	}
}
