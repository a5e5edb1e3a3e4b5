package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "Income"
	Expense TransactionType = "Expense"
)

// DateLayout is the calendar date format exchanged with the collaborator.
const DateLayout = "2006-01-02"

type (
	TransactionType string

	// Date is a calendar date with no time-of-day or timezone meaning.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string          `json:"id"`
		Description string          `json:"description"`
		Amount      Money           `json:"amount"`
		Type        TransactionType `json:"transaction_type"`
		Date        Date            `json:"transaction_date"`
	}

	// Draft is user input for a transaction that has not been validated yet.
	Draft struct {
		Description string
		Amount      string
		Type        TransactionType
		Date        string
	}

	// NewTransaction is the validated request body sent on create.
	NewTransaction struct {
		Description string          `json:"description"`
		Amount      Money           `json:"amount"`
		Type        TransactionType `json:"transaction_type"`
		Date        Date            `json:"transaction_date"`
	}

	Identity struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}

	Credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("amount must be greater than 0")
	ErrEmptyDescription = errors.New("description is required")
	ErrInvalidType      = errors.New("transaction type must be Income or Expense")
	ErrNotAuthenticated = errors.New("not authenticated")
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current local calendar date.
func Today() Date {
	y, m, d := time.Now().Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string. No timezone conversion is applied.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero (absent bound).
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks a draft locally and returns the request body to send.
// An empty date defaults to today.
func (d Draft) Validate(today Date) (NewTransaction, error) {
	desc := strings.TrimSpace(d.Description)
	if desc == "" {
		return NewTransaction{}, &ValidationError{Field: "description", Err: ErrEmptyDescription}
	}
	amount, err := ParseAmount(d.Amount)
	if err != nil {
		return NewTransaction{}, &ValidationError{Field: "amount", Err: err}
	}
	if !d.Type.Valid() {
		return NewTransaction{}, &ValidationError{Field: "transaction_type", Err: ErrInvalidType}
	}
	date := today
	if strings.TrimSpace(d.Date) != "" {
		date, err = ParseDate(d.Date)
		if err != nil {
			return NewTransaction{}, &ValidationError{Field: "transaction_date", Err: err}
		}
	}
	return NewTransaction{
		Description: desc,
		Amount:      amount,
		Type:        d.Type,
		Date:        date,
	}, nil
}

// IsZero reports whether no user is present.
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Email == ""
}
