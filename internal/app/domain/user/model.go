package user

import "time"

// Role identifies a user's permission tier.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User is a platform participant. Users are deactivated, never deleted;
// TotalXP must always equal the sum of the user's ledger entries.
type User struct {
	ID            string
	Handle        string
	Role          Role
	Active        bool
	TotalXP       int64
	CurrentWeekXP int64
	StreakWeeks   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
