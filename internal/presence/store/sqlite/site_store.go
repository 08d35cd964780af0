package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/ecstasyos/presence/server/internal/db"
	"github.com/ecstasyos/presence/server/internal/presence/geofence"
)

type SiteStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewSiteStore(db *sql.DB, writer *dbpkg.Worker) *SiteStore {
	return &SiteStore{db: db, writer: writer}
}

func (s *SiteStore) UpsertSite(ctx context.Context, p geofence.Point) error {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return nil
	}
	ms := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sites(site_id, name, kind, lat, lng, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(site_id) DO UPDATE SET
  name = excluded.name,
  kind = excluded.kind,
  lat = excluded.lat,
  lng = excluded.lng,
  updated_at_ms = excluded.updated_at_ms;
`, p.ID, p.Name, p.Kind, p.Lat, p.Lng, ms, ms); err != nil {
			return fmt.Errorf("UpsertSite %s: %w", p.ID, err)
		}
		return nil
	})
}

func (s *SiteStore) Site(ctx context.Context, id string) (geofence.Point, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return geofence.Point{}, false, nil
	}

	var p geofence.Point
	err := s.db.QueryRowContext(ctx, `
SELECT site_id, name, kind, lat, lng
FROM sites
WHERE site_id = ?;
`, id).Scan(&p.ID, &p.Name, &p.Kind, &p.Lat, &p.Lng)
	if err == sql.ErrNoRows {
		return geofence.Point{}, false, nil
	}
	if err != nil {
		return geofence.Point{}, false, fmt.Errorf("Site query: %w", err)
	}
	return p, true, nil
}
