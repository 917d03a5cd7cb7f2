package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecurringStore is the store label written on every projected ledger line.
const RecurringStore = "recurring"

// ManualStore is the store label used for hand-entered lines.
const ManualStore = "手入力"

// DateLayout is the canonical on-disk and wire date format.
const DateLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	// ReceiptLine is one purchased item (or one income line) in the ledger.
	ReceiptLine struct {
		Date            Date   `json:"date"`
		Store           string `json:"store"`
		Name            string `json:"name"`
		MajorCategory   string `json:"majorCategory"`
		MinorCategory   string `json:"minorCategory"`
		PriceNet        int64  `json:"priceNet"`
		PriceIncludeTax int64  `json:"priceIncludeTax"`
	}

	// LineKey is the identity used for de-duplication.
	LineKey struct {
		Date            string `json:"date"`
		Name            string `json:"name"`
		PriceIncludeTax int64  `json:"priceIncludeTax"`
	}

	RecurringRule struct {
		ID            string  `json:"id"`
		Title         string  `json:"title"`
		Amount        int64   `json:"amount"`
		MajorCategory string  `json:"majorCategory"`
		MinorCategory string  `json:"minorCategory"`
		DayOfMonth    int     `json:"dayOfMonth"`
		StartPeriod   Period  `json:"startYearMonth"`
		EndPeriod     *Period `json:"endYearMonth,omitempty"`
		IsIncome      bool    `json:"isIncome"`
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidPeriod = errors.New("invalid period")
	ErrInvalidDay    = errors.New("invalid day of month")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyName     = errors.New("empty name")
	ErrEmptyMajor    = errors.New("empty major category")
	ErrEmptyTitle    = errors.New("empty title")
	ErrPeriodOrder   = errors.New("end period before start period")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts YYYY-MM-DD and the legacy YYYY/MM/DD form.
func ParseDate(s string) (Date, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "/", "-")
	if len(s) != len(DateLayout) {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Period returns the year-month the date falls in.
func (d Date) Period() Period {
	return Period{Year: d.Year(), Month: d.Month()}
}

// After reports whether d is a later calendar day than o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON overrides the promoted time.Time encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, b)
	}
	return d.UnmarshalText([]byte(s))
}

// Key returns the de-duplication identity of the line.
func (l ReceiptLine) Key() LineKey {
	return LineKey{Date: l.Date.String(), Name: l.Name, PriceIncludeTax: l.PriceIncludeTax}
}

// Period returns the year-month of the line's date.
func (l ReceiptLine) Period() Period {
	return l.Date.Period()
}

// Validate checks a hand-entered line. Parsed lines are only required to
// carry a valid date.
func (l ReceiptLine) Validate() error {
	if err := l.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(l.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(l.MajorCategory) == "" {
		return ErrEmptyMajor
	}
	if l.PriceNet < 0 || l.PriceIncludeTax < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// NewRecurringRule assigns a fresh id to r.
func NewRecurringRule(r RecurringRule) RecurringRule {
	r.ID = uuid.NewString()
	return r
}

func (r RecurringRule) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrEmptyTitle
	}
	if r.Amount < 0 {
		return ErrInvalidAmount
	}
	if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
		return ErrInvalidDay
	}
	if r.StartPeriod.IsZero() {
		return ErrInvalidPeriod
	}
	if r.EndPeriod != nil && r.EndPeriod.Before(r.StartPeriod) {
		return ErrPeriodOrder
	}
	return nil
}

// ActiveIn reports whether the rule covers period p.
func (r RecurringRule) ActiveIn(p Period) bool {
	if p.Before(r.StartPeriod) {
		return false
	}
	return r.EndPeriod == nil || !p.After(*r.EndPeriod)
}
