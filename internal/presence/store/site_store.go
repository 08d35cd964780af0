package store

import (
	"context"

	"github.com/ecstasyos/presence/server/internal/presence/geofence"
)

type SiteStore interface {
	UpsertSite(ctx context.Context, p geofence.Point) error
	// Site returns ok=false when no row exists for id.
	Site(ctx context.Context, id string) (p geofence.Point, ok bool, err error)
}
