package models

import (
	"errors"
	"fmt"
	"time"
)

// WindowMonths is how far ahead of the latest actual month predictions are checked.
const WindowMonths = 6

var ErrInvalidPeriod = errors.New("invalid period")

// monthNames are the Indonesian month names shown on the dashboard.
var monthNames = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// Period identifies one surveillance month.
type Period struct {
	Month int `json:"month" yaml:"month"`
	Year  int `json:"year" yaml:"year"`
}

// Valid reports whether the period names a real calendar month.
func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year > 0
}

// Validate returns ErrInvalidPeriod wrapped with the offending values.
func (p Period) Validate() error {
	if !p.Valid() {
		return fmt.Errorf("%w: month=%d year=%d", ErrInvalidPeriod, p.Month, p.Year)
	}
	return nil
}

// FirstDay returns midnight UTC on the first day of the month.
func (p Period) FirstDay() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves the period forward (or back for negative n), rolling the year.
func (p Period) AddMonths(n int) Period {
	return PeriodOf(p.FirstDay().AddDate(0, n, 0))
}

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// MonthName returns the Indonesian name of the month, or "" when invalid.
func (p Period) MonthName() string {
	if p.Month < 1 || p.Month > 12 {
		return ""
	}
	return monthNames[p.Month-1]
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// PeriodOf truncates t to its month.
func PeriodOf(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}
