package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/scholarxp/xp-engine/internal/app/domain/leaderboard"
	"github.com/scholarxp/xp-engine/internal/app/storage"
)

// Analytics serves the read-side aggregate queries over the same database
// handle as the write store.
type Analytics struct {
	db *sqlx.DB
}

var _ storage.AnalyticsStore = (*Analytics)(nil)

// NewAnalytics wraps the database handle for read-side queries.
func NewAnalytics(db *sql.DB) *Analytics {
	return &Analytics{db: sqlx.NewDb(db, "postgres")}
}

// CurrentStandings ranks active users by current-week XP. Ties break on
// user id so ranks are stable across reads.
func (a *Analytics) CurrentStandings(ctx context.Context, limit int) ([]leaderboard.Standing, error) {
	if limit <= 0 {
		limit = 100
	}

	var standings []leaderboard.Standing
	err := a.db.SelectContext(ctx, &standings, `
		SELECT RANK() OVER (ORDER BY current_week_xp DESC, id) AS rank,
		       id AS user_id, handle, current_week_xp AS week_xp, total_xp
		FROM users
		WHERE active
		ORDER BY rank
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return standings, nil
}

// LedgerTotals returns the per-user sum over the whole ledger.
func (a *Analytics) LedgerTotals(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		UserID string `db:"user_id"`
		Total  int64  `db:"total"`
	}
	err := a.db.SelectContext(ctx, &rows, `
		SELECT user_id, COALESCE(SUM(amount), 0) AS total
		FROM xp_transactions
		GROUP BY user_id
	`)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64, len(rows))
	for _, r := range rows {
		totals[r.UserID] = r.Total
	}
	return totals, nil
}
