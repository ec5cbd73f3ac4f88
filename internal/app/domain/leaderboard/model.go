package leaderboard

import "time"

// Standing is one user's position in a ranking.
type Standing struct {
	Rank    int    `json:"rank" db:"rank"`
	UserID  string `json:"user_id" db:"user_id"`
	Handle  string `json:"handle" db:"handle"`
	WeekXP  int64  `json:"week_xp" db:"week_xp"`
	TotalXP int64  `json:"total_xp" db:"total_xp"`
}

// Snapshot is a point-in-time ranking for a closed week. Snapshots are
// rebuilt whole by the weekly job and never hand-edited.
type Snapshot struct {
	ID          string
	WeekNumber  int
	GeneratedAt time.Time
	Entries     []Standing
}
