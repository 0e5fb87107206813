package finance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tesoro/internal/failure"
)

// Span is the slice of a planning entry the per-diem limits are checked against.
type Span struct {
	Start         time.Time
	End           time.Time
	Institutional int
	ThirdParty    int
}

// SpanDays counts the calendar days from start to end, both inclusive.
// It returns 0 when end precedes start.
func SpanDays(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	if e.Before(s) {
		return 0
	}

	return int(e.Sub(s).Hours()/24) + 1
}

// Ceiling returns the declared headcount for the destination.
func (s Span) Ceiling(dest Destination) int {
	if dest == DestinationInstitutional {
		return s.Institutional
	}

	return s.ThirdParty
}

// CheckPerDiemLimits rejects a per-diem whose days exceed the planning span or
// whose headcount exceeds the ceiling declared for its destination.
func CheckPerDiemLimits(days decimal.Decimal, people int, dest Destination, span Span) error {
	spanDays := SpanDays(span.Start, span.End)
	if days.GreaterThan(decimal.NewFromInt(int64(spanDays))) {
		return fmt.Errorf("%w: %s per-diem days exceed the %d planned days", failure.ErrOutOfRange, days.String(), spanDays)
	}

	if limit := span.Ceiling(dest); people > limit {
		return fmt.Errorf("%w: %d people exceed the %s headcount of %d", failure.ErrOutOfRange, people, dest, limit)
	}

	return nil
}
