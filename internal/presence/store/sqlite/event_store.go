package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/ecstasyos/presence/server/internal/db"
	"github.com/ecstasyos/presence/server/internal/presence/store"
)

type EventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewEventStore(db *sql.DB, writer *dbpkg.Worker) *EventStore {
	return &EventStore{db: db, writer: writer}
}

func (s *EventStore) RecordEvent(ctx context.Context, rec store.EventRecord) error {
	if strings.TrimSpace(rec.EventID) == "" {
		return fmt.Errorf("RecordEvent: empty event id")
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	var email any
	if rec.Email != "" {
		email = rec.Email
	}

	var faces any
	if rec.Faces != nil {
		faces = *rec.Faces
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		siteID, err := resolveSite(ctx, tx, rec.SiteID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO attendance_events(
  event_id, session_id, kind, outcome, employee_id, email, site_id,
  occurred_at_ms, faces, lat, lng, accuracy_m, recorded_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.EventID, rec.SessionID, rec.Kind, rec.Outcome, rec.EmployeeID, email, siteID,
			rec.OccurredAt.UTC().UnixMilli(), faces,
			nullFloat(rec.Lat), nullFloat(rec.Lng), nullFloat(rec.AccuracyM),
			rec.RecordedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}

// PruneOlderThan deletes events that occurred before cutoff and returns how
// many rows went. Uses idx_attendance_events_time.
func (s *EventStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM attendance_events
WHERE occurred_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
