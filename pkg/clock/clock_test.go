package clock

import (
	"testing"
	"time"

	"departureboard/pkg/types"
)

func fixedStockholm(t *testing.T, utc string) *Resolver {
	t.Helper()
	instant, err := time.Parse(time.RFC3339, utc)
	if err != nil {
		t.Fatalf("bad instant %q: %v", utc, err)
	}
	r, err := NewStockholm(func() time.Time { return instant })
	if err != nil {
		t.Fatalf("NewStockholm failed: %v", err)
	}
	return r
}

func TestResolver_NowInReferenceZone(t *testing.T) {
	// 06:50 UTC is 07:50 in Stockholm in winter
	r := fixedStockholm(t, "2024-03-01T06:50:00Z")

	now := r.Now()
	if now.Location().String() != ReferenceZone {
		t.Errorf("location = %s, want %s", now.Location(), ReferenceZone)
	}
	if now.Hour() != 7 || now.Minute() != 50 {
		t.Errorf("Now() = %s, want 07:50 local", now.Format("15:04"))
	}
}

func TestResolver_MinutesUntil(t *testing.T) {
	tests := []struct {
		name     string
		now      string
		clock    string
		expected types.TimeLeft
	}{
		{"ten minutes ahead", "2024-03-01T06:50:00Z", "08:00", 10},
		{"seconds in clock are ignored", "2024-03-01T06:50:00Z", "08:00:59", 10},
		{"partial minute rounds up", "2024-03-01T06:50:30Z", "08:00:00", 10},
		{"same minute is zero", "2024-03-01T06:50:00Z", "07:50", 0},
		{"one minute behind rolls over", "2024-03-01T06:50:00Z", "07:49", 1439},
		{"earlier in same minute rolls over", "2024-03-01T06:50:30Z", "07:50", 1440},
		{"after midnight", "2024-03-01T22:55:00Z", "00:05", 10},
		{"summer time offset", "2024-07-01T05:50:00Z", "08:00", 10},
		{"garbage", "2024-03-01T06:50:00Z", "soon", types.Unparseable},
		{"out of range hour", "2024-03-01T06:50:00Z", "25:00", types.Unparseable},
		{"empty", "2024-03-01T06:50:00Z", "", types.Unparseable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := fixedStockholm(t, tt.now)
			got := r.MinutesUntil(tt.clock)
			if got != tt.expected {
				t.Errorf("MinutesUntil(%q) = %d, want %d", tt.clock, int(got), int(tt.expected))
			}
		})
	}
}

func TestResolver_MinutesUntilNeverNegative(t *testing.T) {
	r := fixedStockholm(t, "2024-03-01T06:50:17Z")

	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			clock := time.Date(2024, 1, 1, h, m, 0, 0, time.UTC).Format("15:04")
			got := r.MinutesUntil(clock)
			if !got.IsNumeric() {
				t.Fatalf("MinutesUntil(%q) = %s, want numeric", clock, got)
			}
			if got > 24*60 {
				t.Fatalf("MinutesUntil(%q) = %d, more than a day", clock, int(got))
			}
		}
	}
}

func TestResolver_IndependentOfHostZone(t *testing.T) {
	instant := time.Date(2024, 3, 1, 6, 50, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)

	r, err := NewStockholm(func() time.Time { return instant.In(tokyo) })
	if err != nil {
		t.Fatalf("NewStockholm failed: %v", err)
	}

	if got := r.MinutesUntil("08:00"); got != 10 {
		t.Errorf("MinutesUntil(08:00) = %d, want 10", int(got))
	}
}

func TestResolver_AtFreezesInstant(t *testing.T) {
	loc, err := time.LoadLocation(ReferenceZone)
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	live := New(loc, func() time.Time {
		calls++
		return time.Date(2024, 3, 1, 7, 50, 0, 0, loc).Add(time.Duration(calls) * time.Minute)
	})

	frozen := live.At(live.Now())
	first := frozen.MinutesUntil("08:10")
	second := frozen.MinutesUntil("08:10")

	if first != second {
		t.Errorf("frozen resolver drifted: %d then %d", int(first), int(second))
	}
	if first != 19 {
		t.Errorf("MinutesUntil = %d, want 19", int(first))
	}
	if frozen.Location() != loc {
		t.Errorf("Location() = %v, want %v", frozen.Location(), loc)
	}
	if calls != 1 {
		t.Errorf("live clock read %d times, want 1", calls)
	}
}
