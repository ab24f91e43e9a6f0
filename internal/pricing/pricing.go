package pricing

import (
	"fmt"
	"time"

	"rentacar-backend/internal/domain"
)

const (
	day         = 24 * time.Hour
	daysPerWeek = 7
)

// Span is a calendar difference with an exclusive end date.
type Span struct {
	Months int
	Days   int
}

// Breakdown details how a rental total was assembled.
type Breakdown struct {
	Months     int
	Weeks      int
	Days       int
	MonthsCost int64
	WeeksCost  int64
	DaysCost   int64
	TotalCost  int64
}

// DaysInMonth returns the number of days in a given month
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CalendarSpan computes the months and days between two dates, end exclusive.
func CalendarSpan(start, end time.Time) (Span, error) {
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	if end.Before(start) {
		return Span{}, fmt.Errorf("end date must be >= start date")
	}

	years := ey - sy
	months := int(em) - int(sm)
	days := ed - sd

	if days < 0 {
		months--
		prev := em - 1
		prevYear := ey
		if prev < time.January {
			prev = time.December
			prevYear--
		}
		days += DaysInMonth(prevYear, prev)
	}
	if months < 0 {
		years--
		months += 12
	}
	return Span{Months: months + 12*years, Days: days}, nil
}

// ChargedDays is the number of started 24h periods in w, at least one.
func ChargedDays(w domain.Window) int {
	d := w.DropOff.Sub(w.PickUp)
	n := int(d / day)
	if d%day > 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Calculate returns the total for w at the model's tiered rates.
func Calculate(w domain.Window, model domain.CarModel) (int64, error) {
	b, err := CalculateWithBreakdown(w, model)
	if err != nil {
		return 0, err
	}
	return b.TotalCost, nil
}

// CalculateWithBreakdown charges whole months, then whole weeks, then the
// remaining days. The leftover days never cost more than one week.
func CalculateWithBreakdown(w domain.Window, model domain.CarModel) (Breakdown, error) {
	if !w.Valid() {
		return Breakdown{}, domain.ErrInvalidWindow
	}
	start := w.PickUp.UTC()
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, ChargedDays(w))

	span, err := CalendarSpan(start, end)
	if err != nil {
		return Breakdown{}, err
	}

	weeks := span.Days / daysPerWeek
	days := span.Days % daysPerWeek

	b := Breakdown{
		Months:     span.Months,
		Weeks:      weeks,
		Days:       days,
		MonthsCost: int64(span.Months) * model.MonthlyRateCents,
		WeeksCost:  int64(weeks) * model.WeeklyRateCents,
		DaysCost:   int64(days) * model.DailyRateCents,
	}
	if model.WeeklyRateCents > 0 && b.DaysCost > model.WeeklyRateCents {
		b.DaysCost = model.WeeklyRateCents
	}
	b.TotalCost = b.MonthsCost + b.WeeksCost + b.DaysCost
	return b, nil
}
