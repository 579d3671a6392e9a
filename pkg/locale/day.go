package locale

import (
	"strings"
	"time"
)

const (
	DateLayout    = "2006-01-02"
	DateKeyLayout = "20060102"
)

// DateOf returns the calendar day of t in loc, formatted YYYY-MM-DD.
func DateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

func ValidDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

// CompactDate turns "2025-04-30" into "20250430". Invalid input is returned
// with the dashes stripped so callers never produce an empty key.
func CompactDate(date string) string {
	if t, err := time.Parse(DateLayout, date); err == nil {
		return t.Format(DateKeyLayout)
	}
	return strings.ReplaceAll(date, "-", "")
}

// StartOfDay returns midnight of the given calendar day in loc.
func StartOfDay(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, date, loc)
}
