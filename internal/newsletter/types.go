package newsletter

import (
	"context"
	"time"

	"mailroom/internal/types"
)

// Store is the slice of the document store the dispatcher needs. The
// concrete implementation lives in internal/external.
type Store interface {
	DueIssue(ctx context.Context, now time.Time) (*types.NewsletterIssue, error)
	StuckSendingIssues(ctx context.Context) ([]types.NewsletterIssue, error)
	IssueByID(ctx context.Context, id string) (*types.NewsletterIssue, error)
	IssueBySlug(ctx context.Context, slug string) (*types.NewsletterIssue, error)
	SetIssueStatus(ctx context.Context, id string, status types.IssueStatus) error
	ClientReps(ctx context.Context) ([]types.Recipient, error)
	SendLogFor(ctx context.Context, issueID, email string) (*types.SendLogEntry, error)
	CreateSendLog(ctx context.Context, entry types.SendLogEntry) error
	FailedSendLogEntries(ctx context.Context, issueID string) ([]types.SendLogEntry, error)
	DeleteSendLogEntry(ctx context.Context, id string) error
}

// StoreProvider yields a freshly authenticated store handle for one
// dispatch invocation.
type StoreProvider func(ctx context.Context) (Store, error)

// Renderer is the template engine slice the dispatcher needs.
type Renderer interface {
	Render(name string, data map[string]any) (string, error)
}

// Options tunes one dispatch invocation.
type Options struct {
	// DryRun walks the full loop without relaying mail or writing log
	// entries; the issue is restored to scheduled afterwards.
	DryRun bool
	// Limit caps how many sends are attempted in one pass. Zero means the
	// configured maximum. When the limit truncates a pass the issue stays
	// scheduled so a later invocation covers the remaining recipients.
	Limit int
}

// Totals summarizes one dispatch invocation.
//
// Targeted counts all deduplicated recipients for the issue, including any
// the limit cut this pass off from reaching. Skipped counts blank addresses
// and recipients already present in the send log. In a dry run WouldSend
// counts the recipients a real pass would have relayed to and Sent/Failed
// stay zero.
type Totals struct {
	IssueID   string `json:"issue_id"`
	Slug      string `json:"slug"`
	Targeted  int    `json:"targeted"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	WouldSend int    `json:"would_send"`
	DryRun    bool   `json:"dry_run"`
}

// TestSendRequest identifies an issue (by id or slug) and a single
// destination address for a preview send.
type TestSendRequest struct {
	IssueID string
	Slug    string
	To      string
}
