// Package compliance evaluates vendor document completeness. The evaluation
// is a pure function over a vendor record and a reference time; it performs
// no IO and is safe to call from any goroutine.
package compliance

import (
	"math"
	"strings"
	"time"

	"mailroom/internal/types"
)

// IssueCode identifies one compliance problem on a vendor record.
type IssueCode string

const (
	IssueMissingW9      IssueCode = "missing_w9"
	IssueMissingCOI     IssueCode = "missing_coi"
	IssueMissingCOIDate IssueCode = "missing_coi_date"
	IssueInvalidCOIDate IssueCode = "invalid_coi_date"
	IssueCOIExpired     IssueCode = "coi_expired"
	IssueCOIExpiresSoon IssueCode = "coi_expires_soon"
)

// expiresSoonWindowDays is the advance-warning window for COI expiration.
const expiresSoonWindowDays = 30

// coiDateLayouts are the accepted formats for operator-entered expiration
// dates, tried in order.
var coiDateLayouts = []string{
	"2006-01-02 15:04:05.000Z",
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
}

// Result is the outcome of evaluating one vendor.
//
// Issues is ordered: W9 problems precede COI problems, and at most one COI
// issue is reported (the checks short-circuit from most to least severe).
// DaysUntilExpiration is set only when the COI expiration date parsed; it
// may be negative for an already-expired certificate.
type Result struct {
	Issues              []IssueCode `json:"issues"`
	DaysUntilExpiration *int        `json:"days_until_expiration"`
}

// Compliant reports whether the vendor has no outstanding issues.
func (r Result) Compliant() bool {
	return len(r.Issues) == 0
}

// Has reports whether the result contains the given issue.
func (r Result) Has(code IssueCode) bool {
	for _, c := range r.Issues {
		if c == code {
			return true
		}
	}
	return false
}

// Evaluate checks a vendor's W9 and certificate-of-insurance documents
// against the reference time.
func Evaluate(v types.Vendor, now time.Time) Result {
	var result Result

	if v.W9Document == "" {
		result.Issues = append(result.Issues, IssueMissingW9)
	}

	if v.COIDocument == "" {
		result.Issues = append(result.Issues, IssueMissingCOI)
		return result
	}

	expiration := strings.TrimSpace(v.COIExpiration)
	if expiration == "" {
		result.Issues = append(result.Issues, IssueMissingCOIDate)
		return result
	}

	expiresAt, ok := parseCOIDate(expiration)
	if !ok {
		result.Issues = append(result.Issues, IssueInvalidCOIDate)
		return result
	}

	days := daysUntil(now, expiresAt)
	result.DaysUntilExpiration = &days

	switch {
	case days < 0:
		result.Issues = append(result.Issues, IssueCOIExpired)
	case days <= expiresSoonWindowDays:
		result.Issues = append(result.Issues, IssueCOIExpiresSoon)
	}

	return result
}

func parseCOIDate(value string) (time.Time, bool) {
	for _, layout := range coiDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// daysUntil computes the whole-day distance between two instants over UTC
// date-only midnights, rounded to the nearest day.
func daysUntil(now, expiresAt time.Time) int {
	nowDay := truncateToUTCDay(now)
	expDay := truncateToUTCDay(expiresAt)
	diff := expDay.Sub(nowDay).Hours() / 24
	return int(math.Round(diff))
}

func truncateToUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Summary renders a human-readable description of the result for inclusion
// in notice emails.
func Summary(r Result) string {
	if r.Compliant() {
		return "All documents are current."
	}

	lines := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		lines = append(lines, describe(issue, r.DaysUntilExpiration))
	}
	return strings.Join(lines, " ")
}

func describe(code IssueCode, days *int) string {
	switch code {
	case IssueMissingW9:
		return "A W-9 form is required but missing."
	case IssueMissingCOI:
		return "A certificate of insurance is required but missing."
	case IssueMissingCOIDate:
		return "The certificate of insurance has no expiration date on file."
	case IssueInvalidCOIDate:
		return "The certificate of insurance expiration date on file could not be read."
	case IssueCOIExpired:
		return "The certificate of insurance has expired."
	case IssueCOIExpiresSoon:
		if days != nil {
			if *days == 0 {
				return "The certificate of insurance expires today."
			}
			if *days == 1 {
				return "The certificate of insurance expires tomorrow."
			}
		}
		return "The certificate of insurance expires within 30 days."
	default:
		return string(code)
	}
}
