package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailroom/internal/types"
)

var evalNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func vendorWithCOI(expiration string) types.Vendor {
	return types.Vendor{
		ID:            "v1",
		Name:          "Acme Plumbing",
		W9Document:    "doc-w9",
		COIDocument:   "doc-coi",
		COIExpiration: expiration,
	}
}

func TestEvaluateNoDocuments(t *testing.T) {
	result := Evaluate(types.Vendor{ID: "v1"}, evalNow)

	assert.Equal(t, []IssueCode{IssueMissingW9, IssueMissingCOI}, result.Issues)
	assert.Nil(t, result.DaysUntilExpiration)
}

func TestEvaluateMissingCOIShortCircuitsDateChecks(t *testing.T) {
	v := types.Vendor{ID: "v1", W9Document: "doc-w9", COIExpiration: "garbage"}
	result := Evaluate(v, evalNow)

	assert.Equal(t, []IssueCode{IssueMissingCOI}, result.Issues)
	assert.Nil(t, result.DaysUntilExpiration)
}

func TestEvaluateMissingCOIDate(t *testing.T) {
	result := Evaluate(vendorWithCOI(""), evalNow)

	assert.Equal(t, []IssueCode{IssueMissingCOIDate}, result.Issues)
	assert.Nil(t, result.DaysUntilExpiration)
}

func TestEvaluateInvalidCOIDate(t *testing.T) {
	result := Evaluate(vendorWithCOI("not-a-date"), evalNow)

	assert.Equal(t, []IssueCode{IssueInvalidCOIDate}, result.Issues)
	assert.Nil(t, result.DaysUntilExpiration)
}

func TestEvaluateExpiresExactlyAtWindow(t *testing.T) {
	result := Evaluate(vendorWithCOI("2026-09-14"), evalNow)

	require.NotNil(t, result.DaysUntilExpiration)
	assert.Equal(t, 30, *result.DaysUntilExpiration)
	assert.Equal(t, []IssueCode{IssueCOIExpiresSoon}, result.Issues)
}

func TestEvaluateJustOutsideWindow(t *testing.T) {
	result := Evaluate(vendorWithCOI("2026-09-15"), evalNow)

	require.NotNil(t, result.DaysUntilExpiration)
	assert.Equal(t, 31, *result.DaysUntilExpiration)
	assert.Empty(t, result.Issues)
	assert.True(t, result.Compliant())
}

func TestEvaluateExpiredYesterday(t *testing.T) {
	result := Evaluate(vendorWithCOI("2026-08-14"), evalNow)

	require.NotNil(t, result.DaysUntilExpiration)
	assert.Equal(t, -1, *result.DaysUntilExpiration)
	assert.Equal(t, []IssueCode{IssueCOIExpired}, result.Issues)
}

func TestEvaluateExpiresToday(t *testing.T) {
	result := Evaluate(vendorWithCOI("2026-08-15"), evalNow)

	require.NotNil(t, result.DaysUntilExpiration)
	assert.Equal(t, 0, *result.DaysUntilExpiration)
	assert.Equal(t, []IssueCode{IssueCOIExpiresSoon}, result.Issues)
}

func TestEvaluateTimeOfDayIgnored(t *testing.T) {
	lateNow := time.Date(2026, 8, 15, 23, 59, 0, 0, time.UTC)
	result := Evaluate(vendorWithCOI("2026-08-16 00:00:00.000Z"), lateNow)

	require.NotNil(t, result.DaysUntilExpiration)
	assert.Equal(t, 1, *result.DaysUntilExpiration, "day distance uses date-only midnights")
}

func TestEvaluateSlashDateFormat(t *testing.T) {
	result := Evaluate(vendorWithCOI("12/31/2026"), evalNow)

	require.NotNil(t, result.DaysUntilExpiration)
	assert.Empty(t, result.Issues)
}

func TestEvaluateMissingW9WithValidCOI(t *testing.T) {
	v := vendorWithCOI("2026-12-31")
	v.W9Document = ""
	result := Evaluate(v, evalNow)

	assert.Equal(t, []IssueCode{IssueMissingW9}, result.Issues)
	require.NotNil(t, result.DaysUntilExpiration)
}

func TestSummaryCompliant(t *testing.T) {
	summary := Summary(Result{})
	assert.Equal(t, "All documents are current.", summary)
}

func TestSummaryListsAllIssues(t *testing.T) {
	result := Evaluate(types.Vendor{ID: "v1"}, evalNow)
	summary := Summary(result)

	assert.Contains(t, summary, "W-9")
	assert.Contains(t, summary, "certificate of insurance")
}

func TestSummaryExpiresToday(t *testing.T) {
	days := 0
	summary := Summary(Result{
		Issues:              []IssueCode{IssueCOIExpiresSoon},
		DaysUntilExpiration: &days,
	})
	assert.Contains(t, summary, "today")
}
