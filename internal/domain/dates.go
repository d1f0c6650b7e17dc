package domain

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

const (
	// MinLeadDays is the smallest allowed distance, in calendar days, between
	// today and a booking's start date.
	MinLeadDays = 2
	// TightWindowDays marks bookings whose start is close enough that
	// confirmation may not happen in time.
	TightWindowDays = 2
	// MaxLoanDays caps end - start.
	MaxLoanDays = 42
)

const TightWindowWarning = "Heads up: bookings starting within two days might not be confirmed in time."

// Day truncates t to midnight UTC. All booking intervals are compared as
// closed [start, end] ranges of such days.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayDiff returns the number of calendar days from a to b.
func DayDiff(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// TotalDays is the inclusive day count of [start, end].
func TotalDays(start, end time.Time) int {
	return DayDiff(start, end) + 1
}

// Overlaps applies the closed-interval overlap test used everywhere in the engine.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !Day(aStart).After(Day(bEnd)) && !Day(aEnd).Before(Day(bStart))
}

// PeakLoad returns the largest total quantity that items hold on any single
// day of [start, end]. Items outside the range are ignored. The peak of closed
// intervals is reached on start or on the first day of one of the items.
func PeakLoad(items []BookingItem, start, end time.Time) int {
	start, end = Day(start), Day(end)
	candidates := []time.Time{start}
	for _, it := range items {
		if s := Day(it.StartDate); s.After(start) && !s.After(end) {
			candidates = append(candidates, s)
		}
	}

	peak := 0
	for _, d := range candidates {
		load := 0
		for _, it := range items {
			if Overlaps(it.StartDate, it.EndDate, d, d) {
				load += it.Quantity
			}
		}
		if load > peak {
			peak = load
		}
	}
	return peak
}

// ParseDay accepts either a plain date or an RFC 3339 timestamp.
func ParseDay(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ValidationErrorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Day(t), nil
}

// ValidateLine checks one requested line against the booking rules. It
// returns true when the start date falls inside the tight window.
func ValidateLine(now time.Time, in BookingItemInput) (bool, error) {
	if in.ItemID == "" {
		return false, ValidationErrorf("item_id is required")
	}
	if in.Quantity < 1 {
		return false, ValidationErrorf("quantity must be at least 1")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return false, ValidationErrorf("start_date and end_date are required")
	}
	lead := DayDiff(now, in.StartDate)
	if lead < MinLeadDays {
		return false, ValidationErrorf("start date must be at least one full day in the future")
	}
	span := DayDiff(in.StartDate, in.EndDate)
	if span < 1 {
		return false, ValidationErrorf("end date must be after start date")
	}
	if span > MaxLoanDays {
		return false, ValidationErrorf("booking cannot exceed %d days", MaxLoanDays)
	}
	return lead <= TightWindowDays, nil
}

func FormatDay(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day())
}
