package week

import (
	"testing"
	"time"
)

func TestOf(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want int
	}{
		{"epoch instant", Epoch, 1},
		{"last second of week one", Epoch.AddDate(0, 0, 7).Add(-time.Second), 1},
		{"first second of week two", Epoch.AddDate(0, 0, 7), 2},
		{"mid week", Epoch.AddDate(0, 0, 10), 2},
		{"before epoch clamps", Epoch.AddDate(0, 0, -3), 1},
		{"a year in", Epoch.AddDate(0, 0, 52*7), 53},
	}
	for _, tc := range cases {
		if got := Of(tc.in); got != tc.want {
			t.Errorf("%s: Of(%v) = %d, want %d", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestStartRoundTrips(t *testing.T) {
	for _, n := range []int{1, 2, 17, 104} {
		if got := Of(Start(n)); got != n {
			t.Fatalf("Of(Start(%d)) = %d", n, got)
		}
	}
	if !Start(0).Equal(Epoch) {
		t.Fatalf("Start should clamp to the epoch, got %v", Start(0))
	}
}

func TestOfInTimezoneMatchesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+13", 13*3600)
	local := time.Date(2024, time.January, 8, 2, 0, 0, 0, loc)
	if got, want := Of(local), Of(local.UTC()); got != want {
		t.Fatalf("week differs by timezone: %d vs %d", got, want)
	}
}
