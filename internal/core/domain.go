package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DayLayout is the calendar format used for days on the wire.
const DayLayout = "2006-01-02"

// MaxServings caps the servings a single write may add.
const MaxServings = 10000

type (
	// Day is an epoch day: the number of days since 1970-01-01.
	Day int64

	// FoodEntry is a single (date, name) record with its logged quantity.
	FoodEntry struct {
		Date     Day
		Name     string
		Quantity int
	}

	// EntryKey identifies a FoodEntry.
	EntryKey struct {
		Date Day
		Name string
	}
)

var (
	ErrEmptyName       = errors.New("empty food name")
	ErrInvalidName     = errors.New("invalid food name")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// DayOf returns the epoch day of t's calendar date in t's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	u := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Day(floorDiv(u.Unix(), 86400))
}

// Today returns the epoch day for the local calendar date.
func Today() Day {
	return DayOf(time.Now())
}

// NewDay builds an epoch day from a calendar date.
func NewDay(year, month, day int) Day {
	return DayOf(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC))
}

// ParseDay parses a YYYY-MM-DD calendar date.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return DayOf(t), nil
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

// String formats the day as YYYY-MM-DD.
func (d Day) String() string {
	return d.Time().Format(DayLayout)
}

// AddDays returns the day n days after d.
func (d Day) AddDays(n int) Day {
	return d + Day(n)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// ValidateName checks a food name before it is written.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if strings.ContainsAny(name, ",\r\n") {
		return fmt.Errorf("%w: cannot contain commas or line breaks", ErrInvalidName)
	}
	if len(name) > 200 {
		return fmt.Errorf("%w: longer than 200 bytes", ErrInvalidName)
	}
	return nil
}

func (e FoodEntry) Key() EntryKey {
	return EntryKey{Date: e.Date, Name: e.Name}
}

// Validate checks a row about to be added: a usable name and a quantity in
// 1..MaxServings.
func (e FoodEntry) Validate() error {
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	if e.Quantity <= 0 || e.Quantity > MaxServings {
		return ErrInvalidQuantity
	}
	return nil
}
