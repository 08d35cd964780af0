package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ecstasyos/presence/server/internal/presence/geofence"
)

// SeedSites upserts the configured geofence points into sites. Rows for
// points that were removed from the file are left alone so that historical
// events keep their site_id.
func SeedSites(ctx context.Context, db *sql.DB, points []geofence.Point) error {
	if len(points) == 0 {
		return nil
	}
	now := time.Now().UTC().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed sites begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range points {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sites(site_id, name, kind, lat, lng, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(site_id) DO UPDATE SET
  name = excluded.name,
  kind = excluded.kind,
  lat = excluded.lat,
  lng = excluded.lng,
  updated_at_ms = excluded.updated_at_ms;
`, p.ID, p.Name, p.Kind, p.Lat, p.Lng, now, now); err != nil {
			return fmt.Errorf("seed site %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed sites commit: %w", err)
	}
	return nil
}
