// Package types defines the shared domain model for the mailroom service.
//
// Every record in this file is owned and persisted by the external document
// store; mailroom only reads them, computes derived views, and writes back
// narrow side effects (verification flags, issue status transitions, send-log
// entries).
package types

import "strings"

// Vendor is a vendor record as stored in the "vendors" collection.
// Document references point into the "vendor_documents" collection and may
// be absent. COIExpiration is a free-form date string entered by operators
// and must be treated as potentially malformed.
type Vendor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContactEmail  string `json:"contact_email"`
	ContactPhone  string `json:"contact_phone"`
	W9Document    string `json:"w9_document"`
	COIDocument   string `json:"coi_document"`
	COIExpiration string `json:"coi_expiration"`
}

// VendorDocument is an uploaded file record from the "vendor_documents"
// collection. File holds the stored filename used to build download URLs.
type VendorDocument struct {
	ID   string `json:"id"`
	File string `json:"file"`
}

// IssueStatus is the lifecycle state of a newsletter issue.
type IssueStatus string

const (
	IssueStatusDraft     IssueStatus = "draft"
	IssueStatusScheduled IssueStatus = "scheduled"
	IssueStatusSending   IssueStatus = "sending"
	IssueStatusSent      IssueStatus = "sent"
)

// NewsletterIssue is a single issue of the newsletter, stored in the
// "newsletter_issues" collection. SendAt uses the store's timestamp format.
//
// Invariant: at most one issue is in "sending" at a time. The dispatcher
// enforces this by transitioning status before iterating recipients; the
// due-issue query filters on "scheduled", so a concurrent invocation picks
// nothing while a dispatch is in flight.
type NewsletterIssue struct {
	ID        string      `json:"id"`
	Slug      string      `json:"slug"`
	Status    IssueStatus `json:"status"`
	SendAt    string      `json:"send_at"`
	Subject   string      `json:"subject"`
	Preheader string      `json:"preheader"`
	Body      string      `json:"body"`
}

// Recipient is a client representative row from the "client_reps" collection.
// Email uniqueness is only guaranteed after normalization; the dispatcher
// deduplicates before sending.
type Recipient struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SendStatus is the outcome recorded for a single newsletter send attempt.
type SendStatus string

const (
	SendStatusSent   SendStatus = "sent"
	SendStatusFailed SendStatus = "failed"
)

// SendLogEntry records one delivery attempt in the "newsletter_send_log"
// collection. The (IssueID, Email) pair is the natural idempotency key:
// any logged attempt, sent or failed, suppresses further sends to that
// recipient for that issue.
type SendLogEntry struct {
	ID        string     `json:"id,omitempty"`
	IssueID   string     `json:"issue"`
	Email     string     `json:"email"`
	Status    SendStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	Reference string     `json:"reference,omitempty"`
	SentAt    string     `json:"sent_at,omitempty"`
}

// User is an account record from the "users" collection.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Personnel links a user to a client organization; verification marks the
// person as having confirmed their email.
type Personnel struct {
	ID       string `json:"id"`
	UserID   string `json:"user"`
	FullName string `json:"full_name"`
	Verified bool   `json:"verified"`
}

// Client is a client organization record. Manager holds the user ID of the
// account that owns the client; verifying that user verifies the client.
type Client struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Manager  string `json:"manager"`
	Verified bool   `json:"verified"`
}

// NormalizeEmail canonicalizes an email address for deduplication and
// idempotency keys: surrounding whitespace removed, lowered.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
