package clock

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"departureboard/pkg/types"

	_ "time/tzdata"
)

// ReferenceZone is the timezone every countdown is computed in.
const ReferenceZone = "Europe/Stockholm"

// Resolver turns departure clock strings into minute countdowns relative to
// the current instant in a fixed reference timezone.
type Resolver struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Resolver for loc. A nil now uses time.Now.
func New(loc *time.Location, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{loc: loc, now: now}
}

// NewStockholm returns a Resolver in Europe/Stockholm.
func NewStockholm(now func() time.Time) (*Resolver, error) {
	loc, err := time.LoadLocation(ReferenceZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", ReferenceZone, err)
	}
	return New(loc, now), nil
}

// Location returns the reference timezone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// At returns a Resolver frozen at t. Every countdown it computes shares the
// same instant.
func (r *Resolver) At(t time.Time) *Resolver {
	return New(r.loc, func() time.Time { return t })
}

// Now returns the current instant expressed in the reference timezone.
func (r *Resolver) Now() time.Time {
	return r.now().In(r.loc)
}

// MinutesUntil returns the rounded-up minutes until clock ("HH:MM" or
// "HH:MM:SS", seconds ignored) on the reference calendar date. A clock that
// is already behind now rolls over to the next day once.
func (r *Resolver) MinutesUntil(clock string) types.TimeLeft {
	now := r.Now()
	return minutesUntil(now, clock)
}

func minutesUntil(now time.Time, clock string) types.TimeLeft {
	hours, minutes, ok := parseClock(clock)
	if !ok {
		return types.Unparseable
	}

	departure := time.Date(now.Year(), now.Month(), now.Day(), hours, minutes, 0, 0, now.Location())
	if departure.Before(now) {
		departure = departure.AddDate(0, 0, 1)
	}

	diff := departure.Sub(now)
	if diff < 0 {
		return types.Departed
	}

	return types.TimeLeft(math.Ceil(diff.Minutes()))
}

func parseClock(clock string) (int, int, bool) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) < 2 {
		return 0, 0, false
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, 0, false
	}
	return hours, minutes, true
}
