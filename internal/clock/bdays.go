// Package clock provides business-day arithmetic for holding-period checks.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidTimepoint is returned when a holding-period spec cannot be parsed.
var ErrInvalidTimepoint = errors.New("invalid timepoint")

// Business days per unit letter. A month is 20 trading days, a year 12 months.
const (
	daysPerWeek  = 5
	daysPerMonth = 20
	daysPerYear  = 12 * daysPerMonth
)

// ToBusinessDays converts a holding-period spec such as "5d", "1w", "2m" or
// "3y" into a business-day count.
func ToBusinessDays(spec string) (int, error) {
	if spec == "" {
		return 0, fmt.Errorf("%w: empty spec", ErrInvalidTimepoint)
	}

	unit := spec[len(spec)-1]
	magnitude, err := strconv.Atoi(spec[:len(spec)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: non-integer magnitude in %q", ErrInvalidTimepoint, spec)
	}
	if magnitude <= 0 {
		return 0, fmt.Errorf("%w: non-positive magnitude in %q", ErrInvalidTimepoint, spec)
	}

	switch unit {
	case 'd':
		return magnitude, nil
	case 'w':
		return magnitude * daysPerWeek, nil
	case 'm':
		return magnitude * daysPerMonth, nil
	case 'y':
		return magnitude * daysPerYear, nil
	default:
		return 0, fmt.Errorf("%w: unknown unit %q in %q", ErrInvalidTimepoint, string(unit), spec)
	}
}

// ElapsedBusinessDays counts business days in [start, end), excluding weekends
// and the end date itself. Callers add 1 when the purchase day should count as
// day 1 of the holding period. A non-positive range yields 0.
func ElapsedBusinessDays(start, end time.Time) int {
	s := truncateToDay(start)
	e := truncateToDay(end)

	days := 0
	for d := s; d.Before(e); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

func truncateToDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
