// Package period computes budget period boundaries from an anchor start date
// and a cadence. Periods are half-open intervals: a target date equal to a
// boundary belongs to the period beginning at that boundary.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is the kind of cadence step. A cadence is either day-based or
// month-based, never both.
type Unit string

const (
	Days   Unit = "days"
	Months Unit = "months"
)

var (
	ErrInvalidCadence = errors.New("invalid cadence")
)

// Cadence is the recurring length of one budget period.
type Cadence struct {
	Count int
	Unit  Unit
}

// String renders the cadence in its stored form, e.g. "14 days" or "1 month".
func (c Cadence) String() string {
	unit := string(c.Unit)
	if c.Count == 1 {
		unit = strings.TrimSuffix(unit, "s")
	}
	return fmt.Sprintf("%d %s", c.Count, unit)
}

// Validate checks the cadence is usable.
func (c Cadence) Validate() error {
	if c.Count < 1 {
		return fmt.Errorf("%w: count %d", ErrInvalidCadence, c.Count)
	}
	switch c.Unit {
	case Days, Months:
		return nil
	default:
		return fmt.Errorf("%w: unit %q", ErrInvalidCadence, c.Unit)
	}
}

// Parse reads a cadence from its stored form. Weeks normalize to days and
// years to months, so the result always carries exactly one of the two units.
func Parse(s string) (Cadence, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) != 2 {
		return Cadence{}, fmt.Errorf("%w: %q", ErrInvalidCadence, s)
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil || count < 1 {
		return Cadence{}, fmt.Errorf("%w: %q", ErrInvalidCadence, s)
	}
	switch strings.TrimSuffix(fields[1], "s") {
	case "day":
		return Cadence{Count: count, Unit: Days}, nil
	case "week":
		return Cadence{Count: count * 7, Unit: Days}, nil
	case "month":
		return Cadence{Count: count, Unit: Months}, nil
	case "year":
		return Cadence{Count: count * 12, Unit: Months}, nil
	default:
		return Cadence{}, fmt.Errorf("%w: %q", ErrInvalidCadence, s)
	}
}

// Dates are the boundaries around the period containing a target date.
// Previous, Current and Next are period start dates; the current period is
// [Current, Next).
type Dates struct {
	Index    int
	Previous time.Time
	Current  time.Time
	Next     time.Time
}

// Calculate finds the zero-based period index containing target and the
// surrounding boundary dates. Targets before the anchor yield negative
// indexes.
func Calculate(start time.Time, c Cadence, target time.Time) (Dates, error) {
	if err := c.Validate(); err != nil {
		return Dates{}, err
	}
	start = midnight(start)
	target = midnight(target)

	var n int
	if c.Unit == Days {
		days := int(target.Sub(start).Hours() / 24)
		if target.Before(start) {
			days = -int(start.Sub(target).Hours() / 24)
		}
		n = floorDiv(days, c.Count)
	} else {
		months := (target.Year()-start.Year())*12 + int(target.Month()) - int(start.Month())
		n = floorDiv(months, c.Count)
	}

	// AddDate normalizes month-end overflow, so correct the candidate index
	// until the half-open containment holds.
	for target.Before(boundary(start, c, n)) {
		n--
	}
	for !target.Before(boundary(start, c, n+1)) {
		n++
	}

	return Dates{
		Index:    n,
		Previous: boundary(start, c, n-1),
		Current:  boundary(start, c, n),
		Next:     boundary(start, c, n+1),
	}, nil
}

// boundary returns the start date of period k.
func boundary(start time.Time, c Cadence, k int) time.Time {
	if c.Unit == Days {
		return start.AddDate(0, 0, k*c.Count)
	}
	return start.AddDate(0, k*c.Count, 0)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
