// Package week provides the platform's accounting-week numbering. Weeks are
// numbered from a fixed epoch Monday so the number is stable across
// deployments and timezone changes (all arithmetic in UTC).
package week

import "time"

// Epoch is the Monday that opens week 1.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Of returns the accounting-week number containing t. Times before the
// epoch map to week 1.
func Of(t time.Time) int {
	days := int(t.UTC().Sub(Epoch).Hours() / 24)
	if days < 0 {
		return 1
	}
	return days/7 + 1
}

// Start returns the instant the given week opens.
func Start(n int) time.Time {
	if n < 1 {
		n = 1
	}
	return Epoch.AddDate(0, 0, (n-1)*7)
}

// Current returns the week number for the current instant.
func Current() int {
	return Of(time.Now())
}
