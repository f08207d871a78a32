package external

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"mailroom/internal/types"
)

// Canonical collection names in the document store.
const (
	collectionVendors         = "vendors"
	collectionVendorDocuments = "vendor_documents"
	collectionIssues          = "newsletter_issues"
	collectionClientReps      = "client_reps"
	collectionSendLog         = "newsletter_send_log"
	collectionUsers           = "users"
	collectionPersonnel       = "personnel"
	collectionClients         = "client"
)

// quote renders a value for use inside a store filter expression. The store
// uses double-quoted string literals with backslash escapes.
func quote(v string) string {
	return strconv.Quote(v)
}

// DueIssue returns the oldest scheduled issue whose send time is at or before
// now, or (nil, nil) when nothing is due.
func (c *StoreClient) DueIssue(ctx context.Context, now time.Time) (*types.NewsletterIssue, error) {
	return firstMatch[types.NewsletterIssue](ctx, c, collectionIssues, listQuery{
		filter: fmt.Sprintf("status = %s && send_at <= %s",
			quote(string(types.IssueStatusScheduled)), quote(storeTimestamp(now))),
		sort: "send_at",
	})
}

// StuckSendingIssues lists issues left in the sending state, typically after
// a crash mid-dispatch.
func (c *StoreClient) StuckSendingIssues(ctx context.Context) ([]types.NewsletterIssue, error) {
	return listRecords[types.NewsletterIssue](ctx, c, collectionIssues, listQuery{
		filter:  fmt.Sprintf("status = %s", quote(string(types.IssueStatusSending))),
		perPage: 50,
	})
}

// IssueByID fetches a newsletter issue by record id.
func (c *StoreClient) IssueByID(ctx context.Context, id string) (*types.NewsletterIssue, error) {
	issue, err := getRecord[types.NewsletterIssue](ctx, c, collectionIssues, id, "")
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundRecord) {
			return nil, types.NewAppError(types.ErrCodeNotFoundIssue, "newsletter issue not found", err)
		}
		return nil, err
	}
	return issue, nil
}

// IssueBySlug fetches a newsletter issue by its slug, or (nil, nil) when no
// issue carries the slug.
func (c *StoreClient) IssueBySlug(ctx context.Context, slug string) (*types.NewsletterIssue, error) {
	return firstMatch[types.NewsletterIssue](ctx, c, collectionIssues, listQuery{
		filter: fmt.Sprintf("slug = %s", quote(slug)),
	})
}

// SetIssueStatus transitions an issue to the given lifecycle status.
func (c *StoreClient) SetIssueStatus(ctx context.Context, id string, status types.IssueStatus) error {
	_, err := updateRecord[types.NewsletterIssue](ctx, c, collectionIssues, id, map[string]any{
		"status": string(status),
	})
	return err
}

// ClientReps lists all client representatives, ordered by email for stable
// dedupe behavior. The listing is paged, so lists larger than one page are
// returned in full.
func (c *StoreClient) ClientReps(ctx context.Context) ([]types.Recipient, error) {
	return allRecords[types.Recipient](ctx, c, collectionClientReps, listQuery{
		sort: "email",
	})
}

// SendLogFor returns the send-log entry for an (issue, normalized email)
// pair, or (nil, nil) when no attempt has been logged.
func (c *StoreClient) SendLogFor(ctx context.Context, issueID, email string) (*types.SendLogEntry, error) {
	return firstMatch[types.SendLogEntry](ctx, c, collectionSendLog, listQuery{
		filter: fmt.Sprintf("issue = %s && email = %s",
			quote(issueID), quote(types.NormalizeEmail(email))),
	})
}

// CreateSendLog records one delivery attempt.
func (c *StoreClient) CreateSendLog(ctx context.Context, entry types.SendLogEntry) error {
	_, err := createRecord[types.SendLogEntry](ctx, c, collectionSendLog, entry)
	return err
}

// VendorByID fetches a vendor record.
func (c *StoreClient) VendorByID(ctx context.Context, id string) (*types.Vendor, error) {
	vendor, err := getRecord[types.Vendor](ctx, c, collectionVendors, id, "")
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundRecord) {
			return nil, types.NewAppError(types.ErrCodeNotFoundVendor, "vendor not found", err)
		}
		return nil, err
	}
	return vendor, nil
}

// VendorDocumentByID fetches a vendor document record.
func (c *StoreClient) VendorDocumentByID(ctx context.Context, id string) (*types.VendorDocument, error) {
	return getRecord[types.VendorDocument](ctx, c, collectionVendorDocuments, id, "")
}

// VendorDocumentURL builds the download URL for a vendor document file.
func (c *StoreClient) VendorDocumentURL(recordID, filename string) string {
	return c.FileURL(collectionVendorDocuments, recordID, filename)
}

// UserByEmail looks up a user account by normalized email, or (nil, nil)
// when no account exists.
func (c *StoreClient) UserByEmail(ctx context.Context, email string) (*types.User, error) {
	return firstMatch[types.User](ctx, c, collectionUsers, listQuery{
		filter: fmt.Sprintf("email = %s", quote(types.NormalizeEmail(email))),
	})
}

// PersonnelByUser returns the personnel record linked to a user, or
// (nil, nil) when none is linked.
func (c *StoreClient) PersonnelByUser(ctx context.Context, userID string) (*types.Personnel, error) {
	return firstMatch[types.Personnel](ctx, c, collectionPersonnel, listQuery{
		filter: fmt.Sprintf("user = %s", quote(userID)),
	})
}

// MarkPersonnelVerified flips a personnel record's verified flag.
func (c *StoreClient) MarkPersonnelVerified(ctx context.Context, id string) error {
	_, err := updateRecord[types.Personnel](ctx, c, collectionPersonnel, id, map[string]any{
		"verified": true,
	})
	return err
}

// ClientByManager returns the client organization managed by a user, or
// (nil, nil) when the user manages none.
func (c *StoreClient) ClientByManager(ctx context.Context, userID string) (*types.Client, error) {
	return firstMatch[types.Client](ctx, c, collectionClients, listQuery{
		filter: fmt.Sprintf("manager = %s", quote(userID)),
	})
}

// MarkClientVerified flips a client record's verified flag.
func (c *StoreClient) MarkClientVerified(ctx context.Context, id string) error {
	_, err := updateRecord[types.Client](ctx, c, collectionClients, id, map[string]any{
		"verified": true,
	})
	return err
}

// FailedSendLogEntries lists the failed delivery attempts logged for an
// issue.
func (c *StoreClient) FailedSendLogEntries(ctx context.Context, issueID string) ([]types.SendLogEntry, error) {
	return allRecords[types.SendLogEntry](ctx, c, collectionSendLog, listQuery{
		filter: fmt.Sprintf("issue = %s && status = %s",
			quote(issueID), quote(string(types.SendStatusFailed))),
	})
}

// DeleteSendLogEntry removes a send-log record. Clearing a failed entry is
// what allows a requeued dispatch to retry that recipient.
func (c *StoreClient) DeleteSendLogEntry(ctx context.Context, id string) error {
	return deleteRecord(ctx, c, collectionSendLog, id)
}
