// Package store defines the persistence boundary for attendance events and
// the sites they are attributed to. Nothing in the capture flow reads these
// back; they exist for downstream integrations.
package store

import (
	"context"
	"time"
)

// EventRecord is one terminal attempt transition as written to the log.
type EventRecord struct {
	EventID    string
	SessionID  string
	Kind       string // checked_in | checked_out | verification_failed
	Outcome    string
	EmployeeID string
	Email      string
	SiteID     string // empty when the session had no site
	OccurredAt time.Time
	Faces      *int // nil when no inference ran
	Lat        *float64
	Lng        *float64
	AccuracyM  *float64
	RecordedAt time.Time
}

// EventStore persists events as an append-only log.
type EventStore interface {
	RecordEvent(ctx context.Context, rec EventRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
