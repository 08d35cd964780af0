package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// resolveSite maps a session's site id onto the sites table. Unknown or
// empty ids become NULL so the event still lands; the column is nullable.
//
// Must be called inside an existing transaction.
func resolveSite(ctx context.Context, tx *sql.Tx, siteID string) (any, error) {
	if siteID == "" {
		return nil, nil
	}
	var id string
	err := tx.QueryRowContext(ctx, `SELECT site_id FROM sites WHERE site_id = ?;`, siteID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve site %s: %w", siteID, err)
	}
	return id, nil
}
