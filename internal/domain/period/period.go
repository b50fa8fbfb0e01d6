// Package period implements reference-period assignment and billing-window
// math. Every component that reasons about dates goes through this package;
// the day-8 cutover rule lives here and nowhere else.
package period

import (
	"fmt"
	"time"
)

// CutoverDay is the day of month on which a report date rolls into the
// current billing period. Reports dated before the 8th belong to the
// previous calendar month.
const CutoverDay = 8

// Period is one YYYY-MM billing reference period.
type Period struct {
	Year  int
	Month time.Month
}

// Parse parses a "YYYY-MM" string.
func Parse(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid reference period %q (want YYYY-MM): %w", s, err)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return Period{Year: t.Year(), Month: t.Month()}
}

// Previous returns the preceding calendar month.
func (p Period) Previous() Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return Period{Year: t.Year(), Month: t.Month()}
}

// FirstOfMonth returns day 1 of the period.
func (p Period) FirstOfMonth() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// LastOfMonth returns the final day of the period.
func (p Period) LastOfMonth() time.Time {
	return p.Next().FirstOfMonth().AddDate(0, 0, -1)
}

// BillingWindowStart returns day 8 of the period.
func (p Period) BillingWindowStart() time.Time {
	return time.Date(p.Year, p.Month, CutoverDay, 0, 0, 0, 0, time.UTC)
}

// BillingWindowEnd returns day 7 of the following month.
func (p Period) BillingWindowEnd() time.Time {
	return p.Next().BillingWindowStart().AddDate(0, 0, -1)
}

// Derive assigns a report date to its billing period: day-of-month >= 8
// keeps the calendar month, day-of-month < 8 belongs to the previous month.
func Derive(reportDate time.Time) Period {
	p := Period{Year: reportDate.Year(), Month: reportDate.Month()}
	if reportDate.Day() < CutoverDay {
		return p.Previous()
	}
	return p
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// between reports whether d falls in [start, end], all bounds inclusive and
// compared at date precision.
func between(d, start, end time.Time) bool {
	d = dateOnly(d)
	return !d.Before(dateOnly(start)) && !d.After(dateOnly(end))
}

// ContainsExamDate reports whether an exam date is valid for a
// non-retroactive file: within [firstOfMonth, lastOfMonth].
func (p Period) ContainsExamDate(d time.Time) bool {
	return between(d, p.FirstOfMonth(), p.LastOfMonth())
}

// ContainsReportDate reports whether a report date is valid for a
// non-retroactive file: within [firstOfMonth, billingWindowEnd].
func (p Period) ContainsReportDate(d time.Time) bool {
	return between(d, p.FirstOfMonth(), p.BillingWindowEnd())
}

// ExamPredatesMonth reports whether an exam date is strictly before the
// period's first day, the exam-side condition for a retroactive record.
func (p Period) ExamPredatesMonth(d time.Time) bool {
	return dateOnly(d).Before(p.FirstOfMonth())
}

// ReportInBillingWindow reports whether a report date falls inside the
// billing window [day 8, day 7 of the next month], bounds inclusive. The
// report-side condition for a retroactive record.
func (p Period) ReportInBillingWindow(d time.Time) bool {
	return between(d, p.BillingWindowStart(), p.BillingWindowEnd())
}
