package domain

import (
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the calendar-day format used on the wire.
const DateLayout = "2006-01-02"

// MonthKey identifies a month bucket as "YYYY-MM".
type MonthKey string

// MonthKeyOf returns the bucket key for a wire date: its first seven characters.
// Dates shorter than that yield the whole string, so malformed input still
// lands in a (distinct) bucket instead of being dropped.
func MonthKeyOf(date string) MonthKey {
	if len(date) < 7 {
		return MonthKey(date)
	}
	return MonthKey(date[:7])
}

// CurrentMonth returns the key for the month containing t.
func CurrentMonth(t time.Time) MonthKey {
	return MonthKey(fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())))
}

// Split returns the year and the zero-padded month of the key.
func (k MonthKey) Split() (year int, month string) {
	s := string(k)
	if len(s) < 7 || s[4] != '-' {
		return 0, ""
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0, ""
	}
	return y, s[5:7]
}

// Valid reports whether the key is a well-formed YYYY-MM.
func (k MonthKey) Valid() bool {
	_, err := time.Parse("2006-01", string(k))
	return err == nil
}

func (k MonthKey) String() string {
	return string(k)
}

// ParseMonth validates a "YYYY-MM" string.
func ParseMonth(s string) (MonthKey, error) {
	k := MonthKey(s)
	if !k.Valid() {
		return "", &ErrValidation{Field: "month", Message: "mês deve estar no formato YYYY-MM"}
	}
	return k, nil
}

func bucketKey(year int, month string) MonthKey {
	return MonthKey(fmt.Sprintf("%04d-%s", year, month))
}
