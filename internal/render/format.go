package render

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// dateLayouts are the accepted input layouts for FormatDate, tried in order.
var dateLayouts = []string{
	"2006-01-02 15:04:05.000Z",
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
}

// FormatDate renders a stored date string as "January 2, 2006". Unparseable
// or empty input formats as the empty string; template values degrade
// silently rather than erroring.
func FormatDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("January 2, 2006")
		}
	}
	return ""
}

// FormatPhone renders a 10-digit US phone number as "(123) 456-7890".
// Non-digit characters in the input are ignored; anything other than exactly
// ten digits is returned unchanged.
func FormatPhone(value string) string {
	var digits strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) != 10 {
		return value
	}
	return fmt.Sprintf("(%s) %s-%s", d[0:3], d[3:6], d[6:10])
}
