package facetec

import (
	"regexp"
	"strings"
	"time"
)

var dateToken = regexp.MustCompile(`[A-Za-zÀ-ÿ0-9]+`)

var (
	monthNameLayouts = []string{
		"2006-Jan-02", "2006-January-02",
		"02-Jan-2006", "02-January-2006",
		"Jan-02-2006", "January-02-2006",
		"06-Jan-02", "06-January-02",
		"02-Jan-06", "02-January-06",
		"Jan-02-06", "January-02-06",
	}
	fourDigitYearLayouts = []string{"2006-01-02", "02-01-2006", "01-02-2006"}
	twoDigitYearLayouts  = []string{"02-01-06", "01-02-06", "06-01-02"}
)

// ParseOCRDate reads a date of birth as OCR'd off an ID document, where the
// separator and field order vary by template. Day-first wins over
// month-first when both parse. It returns YYYY-MM-DD.
func ParseOCRDate(s string) (string, bool) {
	parts := dateToken.FindAllString(s, -1)
	if len(parts) != 3 {
		return "", false
	}
	var hasFourDigits, hasMonthName bool
	for i, p := range parts {
		if !isDigits(p) {
			hasMonthName = true
			continue
		}
		switch len(p) {
		case 1:
			parts[i] = "0" + p
		case 2:
		case 4:
			hasFourDigits = true
		default:
			return "", false
		}
	}

	layouts := twoDigitYearLayouts
	switch {
	case hasMonthName:
		layouts = monthNameLayouts
	case hasFourDigits:
		layouts = fourDigitYearLayouts
	}
	joined := strings.Join(parts, "-")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, joined); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
