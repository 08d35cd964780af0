package service

import (
	"context"
	"log"
	"time"

	"github.com/ecstasyos/presence/server/internal/presence/capture"
	"github.com/ecstasyos/presence/server/internal/presence/store"
)

// EventRecorder writes session events to an EventStore. Store errors are
// logged and dropped; a failed write never changes what the user was told.
type EventRecorder struct {
	store   store.EventStore
	logger  *log.Logger
	timeout time.Duration
}

func NewEventRecorder(es store.EventStore, logger *log.Logger) *EventRecorder {
	return &EventRecorder{store: es, logger: logger, timeout: 5 * time.Second}
}

// Record satisfies capture.Listener.
func (r *EventRecorder) Record(ev capture.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.RecordEvent(ctx, EventRecord(ev)); err != nil {
		r.logger.Printf("record event %s (%s): %v", ev.ID, ev.Kind, err)
	}
}

// EventRecord flattens a session event into its stored form.
func EventRecord(ev capture.Event) store.EventRecord {
	rec := store.EventRecord{
		EventID:    ev.ID,
		SessionID:  ev.SessionID,
		Kind:       string(ev.Kind),
		Outcome:    ev.Outcome.String(),
		EmployeeID: ev.Identity.EmployeeID,
		Email:      ev.Identity.Email,
		SiteID:     ev.SiteID,
		OccurredAt: ev.At,
		RecordedAt: time.Now().UTC(),
	}
	if ev.Faces >= 0 {
		n := ev.Faces
		rec.Faces = &n
	}
	if p := ev.Position; p != nil {
		lat, lng := p.Lat, p.Lng
		rec.Lat, rec.Lng = &lat, &lng
		if p.AccuracyM > 0 {
			acc := p.AccuracyM
			rec.AccuracyM = &acc
		}
	}
	return rec
}
