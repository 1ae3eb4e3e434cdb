package descriptions

import (
	"errors"
	"time"

	"github.com/openfroyo/descriptions/pkg/editable"
	"github.com/openfroyo/descriptions/pkg/entity"
	"github.com/openfroyo/descriptions/pkg/fetch"
	"github.com/openfroyo/descriptions/pkg/form"
	"github.com/openfroyo/descriptions/pkg/telemetry"
)

// fetchObserver feeds loader notifications into metrics and events.
type fetchObserver struct {
	view     string
	entityID string
	tel      *telemetry.Telemetry
}

func (o *fetchObserver) FetchStarted(fetch.Fingerprint, uint64) {
	o.tel.Metrics.RecordFetchStarted(o.view)
}

func (o *fetchObserver) FetchCompleted(_ fetch.Fingerprint, _ uint64, d time.Duration, err error) {
	status := string(fetch.StatusSuccess)
	if err != nil {
		status = string(fetch.StatusError)
	}
	o.tel.Metrics.RecordFetchCompleted(o.view, status, d)
	_ = o.tel.Events.PublishFetch(o.view, o.entityID, d, err)
}

func (o *fetchObserver) FetchDiscarded(_ fetch.Fingerprint, token uint64) {
	o.tel.Metrics.RecordStaleDiscarded(o.view)
	_ = o.tel.Events.PublishFetchDiscarded(o.view, o.entityID, token)
}

func (d *Descriptions) onTransition(t editable.Transition) {
	result := "ok"
	if t.Err != nil {
		result = "rejected"
		var ve *form.ValidationError
		if errors.As(t.Err, &ve) {
			result = "invalid"
			d.tel.Metrics.RecordValidationFailure(ve.Rule)
		}
	}
	d.tel.Metrics.RecordEditTransition(t.Action, result)
	_ = d.tel.Events.PublishEdit(d.name, d.cfg.EntityID, t.Key.String(), t.Action, t.Err)
}

func (d *Descriptions) onEditChange(next func([]entity.Key)) func([]entity.Key) {
	return func(keys []entity.Key) {
		d.tel.Metrics.SetActiveEdits(d.name, len(keys))
		if next != nil {
			next(keys)
		}
	}
}
