package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseStreetUnit accepts "apt 5", "Apt. 5" or a bare number. Anything
// else encodes as 0.
func ParseStreetUnit(s string) uint64 {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0
	}
	if rest, ok := strings.CutPrefix(s, "apt"); ok {
		s = strings.TrimSpace(strings.TrimPrefix(rest, "."))
	}
	return ParseUint(s)
}

// ParseUint returns the unsigned integer in s, or 0 when s is not one.
func ParseUint(s string) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ErrInvalidDate marks a non-empty date that is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid date")

// NormalizeDate keeps the calendar date of a YYYY-MM-DD date or timestamp as
// written, without shifting offset timestamps to UTC. Empty input returns "".
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	day, _, _ := strings.Cut(s, "T")
	day, _, _ = strings.Cut(day, " ")
	if _, err := time.Parse(dateLayout, day); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return day, nil
}

// FormatDate renders t as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
