// Package clock provides the single source of truth for "now" and for the
// operative calendar day used by the notification pipeline. Scheduling and
// deduplication both key off the civil date in the clinic's timezone, so it
// must be computed in exactly one place rather than re-derived at call sites.
package clock

import (
	"fmt"
	"time"
)

// Clock yields the current instant. Production code uses CivilClock; tests
// inject a Fixed clock.
type Clock interface {
	Now() time.Time
}

// CivilClock is a Clock bound to an IANA timezone. All civil-day arithmetic
// for the pipeline goes through it.
type CivilClock struct {
	loc *time.Location
}

// NewCivilClock loads the given IANA zone name.
func NewCivilClock(zone string) (*CivilClock, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return &CivilClock{loc: loc}, nil
}

// Now returns the current instant in the clock's timezone.
func (c *CivilClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's timezone.
func (c *CivilClock) Location() *time.Location {
	return c.loc
}

// Day returns the civil date (YYYY-MM-DD) of t in the given location. The day
// boundary is the local midnight, not UTC midnight.
func Day(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// At combines the civil date of day with a wall-clock time of the same day in
// loc. hour and min follow the 24h clock.
func At(day time.Time, hour, min int, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, loc)
}

// Fixed is a Clock pinned to a single instant, for tests.
type Fixed struct {
	Instant time.Time
}

// Now returns the pinned instant.
func (f Fixed) Now() time.Time {
	return f.Instant
}
