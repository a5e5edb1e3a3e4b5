package core

import (
	"net/url"
)

// IncomeStatement is the collaborator's aggregate for a date range.
// It is never derived locally from a transaction list.
type IncomeStatement struct {
	Income    Money `json:"income"`
	Expenses  Money `json:"expenses"`
	NetIncome Money `json:"net_income"`
}

// Consistent reports whether net income equals income minus expenses.
func (s IncomeStatement) Consistent() bool {
	return s.NetIncome.Decimal.Equal(s.Income.Sub(s.Expenses.Decimal))
}

func (s IncomeStatement) IsZero() bool {
	return s.Income.IsZero() && s.Expenses.IsZero() && s.NetIncome.IsZero()
}

// DateRange is an optional inclusive window. A zero bound is unbounded.
// Start <= End is not enforced here; the collaborator validates it.
type DateRange struct {
	Start Date
	End   Date
}

func (r DateRange) IsEmpty() bool {
	return r.Start.IsEmpty() && r.End.IsEmpty()
}

// Query encodes the range; absent bounds are omitted.
func (r DateRange) Query() url.Values {
	q := url.Values{}
	if !r.Start.IsEmpty() {
		q.Set("start_date", r.Start.String())
	}
	if !r.End.IsEmpty() {
		q.Set("end_date", r.End.String())
	}
	return q
}

// Label returns the human period description used on reports.
func (r DateRange) Label() string {
	switch {
	case !r.Start.IsEmpty() && !r.End.IsEmpty():
		return r.Start.String() + " to " + r.End.String()
	case !r.Start.IsEmpty():
		return "From " + r.Start.String()
	case !r.End.IsEmpty():
		return "Until " + r.End.String()
	}
	return "All Time"
}

// ParseDateRange builds a range from two optional YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if start != "" {
		if r.Start, err = ParseDate(start); err != nil {
			return DateRange{}, &ValidationError{Field: "start_date", Err: err}
		}
	}
	if end != "" {
		if r.End, err = ParseDate(end); err != nil {
			return DateRange{}, &ValidationError{Field: "end_date", Err: err}
		}
	}
	return r, nil
}
