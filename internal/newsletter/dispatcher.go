// Package newsletter implements the idempotent newsletter dispatch loop.
//
// One issue is processed per invocation. The issue's status transition to
// "sending" acts as the dispatch lock; the send log provides per-recipient
// idempotency, so a crashed or re-invoked dispatch never double-delivers.
package newsletter

import (
	"context"
	"fmt"
	"time"

	"mailroom/internal/external"
	"mailroom/internal/types"
)

// maxLoggedErrorLen caps the error text stored on a failed send-log entry.
const maxLoggedErrorLen = 5000

// newsletterTemplate is the template name rendered for every issue.
const newsletterTemplate = "newsletter"

// sendAtLayouts are the accepted layouts for an issue's send_at field.
var sendAtLayouts = []string{
	"2006-01-02 15:04:05.000Z",
	time.RFC3339,
	"2006-01-02",
}

// Config carries the dispatcher's tunables and shared template values.
type Config struct {
	FromAddress      string
	FromName         string
	HeroImageURL     string
	DefaultPreheader string
	MaxRecipients    int
}

// Dispatcher runs the newsletter send loop.
type Dispatcher struct {
	stores   StoreProvider
	mailer   external.Mailer
	renderer Renderer
	clock    types.Clock
	logger   types.Logger
	cfg      Config
}

// NewDispatcher wires a dispatcher from its collaborators.
func NewDispatcher(
	stores StoreProvider,
	mailer external.Mailer,
	renderer Renderer,
	clock types.Clock,
	logger types.Logger,
	cfg Config,
) *Dispatcher {
	return &Dispatcher{
		stores:   stores,
		mailer:   mailer,
		renderer: renderer,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
}

// DispatchDue picks the oldest due scheduled issue and runs the send loop
// over it. Returns (nil, nil) when no issue is due.
func (d *Dispatcher) DispatchDue(ctx context.Context, opts Options) (*Totals, error) {
	store, err := d.stores(ctx)
	if err != nil {
		return nil, err
	}

	issue, err := store.DueIssue(ctx, d.clock.Now())
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, nil
	}

	return d.dispatchIssue(ctx, store, issue, opts)
}

func (d *Dispatcher) dispatchIssue(ctx context.Context, store Store, issue *types.NewsletterIssue, opts Options) (*Totals, error) {
	log := d.logger.With("issue_id", issue.ID, "slug", issue.Slug, "dry_run", opts.DryRun)

	// The transition to sending locks the issue; the due-issue query only
	// matches scheduled, so concurrent invocations pick nothing.
	if err := store.SetIssueStatus(ctx, issue.ID, types.IssueStatusSending); err != nil {
		return nil, err
	}

	recipients, err := store.ClientReps(ctx)
	if err != nil {
		d.revertToScheduled(ctx, store, issue.ID, log)
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 || limit > d.cfg.MaxRecipients {
		limit = d.cfg.MaxRecipients
	}
	targets := dedupe(recipients)

	totals := Totals{
		IssueID:  issue.ID,
		Slug:     issue.Slug,
		Targeted: len(targets),
		DryRun:   opts.DryRun,
	}

	log.Info("dispatch started", "targeted", totals.Targeted, "limit", limit)

	// Only recipients that actually need a send consume the limit. Blank
	// addresses and already-logged recipients pass through for free, so
	// repeated limited passes walk the whole list.
	attempted := 0
	truncated := false
	for _, recipient := range targets {
		email := types.NormalizeEmail(recipient.Email)
		if email == "" {
			totals.Skipped++
			continue
		}
		if attempted >= limit {
			truncated = true
			break
		}

		existing, err := store.SendLogFor(ctx, issue.ID, email)
		if err != nil {
			// Without the log check a resend cannot be ruled out, so
			// this recipient is recorded as failed rather than sent.
			log.Error("send log lookup failed", "email", email, "error", err)
			totals.Failed++
			attempted++
			continue
		}
		if existing != nil {
			totals.Skipped++
			continue
		}

		attempted++
		if opts.DryRun {
			totals.WouldSend++
			continue
		}

		if err := d.sendTo(ctx, store, issue, recipient, email, log); err != nil {
			totals.Failed++
		} else {
			totals.Sent++
		}
	}

	// A truncated pass leaves the issue scheduled so the next invocation
	// resumes with the recipients the limit cut off.
	final := types.IssueStatusSent
	if opts.DryRun || truncated {
		final = types.IssueStatusScheduled
	}
	if err := store.SetIssueStatus(ctx, issue.ID, final); err != nil {
		log.Error("final status transition failed", "status", final, "error", err)
		return &totals, err
	}

	log.Info("dispatch finished",
		"sent", totals.Sent, "failed", totals.Failed,
		"skipped", totals.Skipped, "would_send", totals.WouldSend)

	return &totals, nil
}

// sendTo renders and relays one issue to one recipient and records the
// attempt. A failure is logged and absorbed so the loop continues.
func (d *Dispatcher) sendTo(ctx context.Context, store Store, issue *types.NewsletterIssue, recipient types.Recipient, email string, log types.Logger) error {
	body, err := d.renderer.Render(newsletterTemplate, d.templateContext(issue, recipient))
	if err != nil {
		log.Error("render failed", "email", email, "error", err)
		d.logAttempt(ctx, store, issue.ID, email, types.SendStatusFailed, "", err, log)
		return err
	}

	reference, err := d.mailer.Send(ctx, external.Message{
		From:     d.cfg.FromAddress,
		FromName: d.cfg.FromName,
		To:       email,
		Subject:  issue.Subject,
		HTML:     body,
	})
	if err != nil {
		log.Error("send failed", "email", email, "error", err)
		d.logAttempt(ctx, store, issue.ID, email, types.SendStatusFailed, "", err, log)
		return err
	}

	d.logAttempt(ctx, store, issue.ID, email, types.SendStatusSent, reference, nil, log)
	return nil
}

// logAttempt writes a send-log entry. Failures here are logged but not
// propagated; losing a log entry is preferable to aborting the batch.
func (d *Dispatcher) logAttempt(ctx context.Context, store Store, issueID, email string, status types.SendStatus, reference string, sendErr error, log types.Logger) {
	entry := types.SendLogEntry{
		IssueID:   issueID,
		Email:     email,
		Status:    status,
		Reference: reference,
		SentAt:    d.clock.Now().UTC().Format("2006-01-02 15:04:05.000Z"),
	}
	if sendErr != nil {
		entry.Error = truncateError(sendErr.Error())
	}

	if err := store.CreateSendLog(ctx, entry); err != nil {
		log.Error("send log write failed", "email", email, "error", err)
	}
}

// templateContext builds the substitution map for the newsletter template.
func (d *Dispatcher) templateContext(issue *types.NewsletterIssue, recipient types.Recipient) map[string]any {
	name := recipient.Name
	if name == "" {
		name = "there"
	}

	preheader := issue.Preheader
	if preheader == "" {
		preheader = d.cfg.DefaultPreheader
	}

	sendAt := parseSendAt(issue.SendAt, d.clock.Now())

	return map[string]any{
		"recipient": map[string]any{
			"name":  name,
			"email": recipient.Email,
		},
		"issue": map[string]any{
			"slug":      issue.Slug,
			"subject":   issue.Subject,
			"preheader": preheader,
			"body":      issue.Body,
			"month":     sendAt.Month().String(),
			"year":      sendAt.Year(),
		},
		"hero_image_url": d.cfg.HeroImageURL,
	}
}

// TestSend renders one issue to a single address without touching the send
// log or the issue status.
func (d *Dispatcher) TestSend(ctx context.Context, req TestSendRequest) (string, error) {
	store, err := d.stores(ctx)
	if err != nil {
		return "", err
	}

	issue, err := d.resolveIssue(ctx, store, req)
	if err != nil {
		return "", err
	}

	body, err := d.renderer.Render(newsletterTemplate, d.templateContext(issue, types.Recipient{
		Email: req.To,
	}))
	if err != nil {
		return "", err
	}

	return d.mailer.Send(ctx, external.Message{
		From:     d.cfg.FromAddress,
		FromName: d.cfg.FromName,
		To:       types.NormalizeEmail(req.To),
		Subject:  issue.Subject,
		HTML:     body,
	})
}

func (d *Dispatcher) resolveIssue(ctx context.Context, store Store, req TestSendRequest) (*types.NewsletterIssue, error) {
	if req.IssueID != "" {
		return store.IssueByID(ctx, req.IssueID)
	}

	issue, err := store.IssueBySlug(ctx, req.Slug)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundIssue, "newsletter issue not found", nil)
	}
	return issue, nil
}

// RequeueFailed clears the failed send-log entries for an issue and returns
// it to the scheduled state so the next dispatch retries those recipients.
// Successful entries are left alone; retried dispatches still skip recipients
// who already received the issue. Returns the number of entries cleared.
func (d *Dispatcher) RequeueFailed(ctx context.Context, issueID string) (int, error) {
	store, err := d.stores(ctx)
	if err != nil {
		return 0, err
	}

	issue, err := store.IssueByID(ctx, issueID)
	if err != nil {
		return 0, err
	}

	entries, err := store.FailedSendLogEntries(ctx, issue.ID)
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, entry := range entries {
		if err := store.DeleteSendLogEntry(ctx, entry.ID); err != nil {
			d.logger.Error("send log delete failed", "entry_id", entry.ID, "error", err)
			continue
		}
		cleared++
	}

	if cleared > 0 {
		if err := store.SetIssueStatus(ctx, issue.ID, types.IssueStatusScheduled); err != nil {
			return cleared, err
		}
	}

	d.logger.Info("failed sends requeued", "issue_id", issue.ID, "slug", issue.Slug, "cleared", cleared)
	return cleared, nil
}

// UnlockStuck reverts issues stranded in the sending state back to
// scheduled. Individual failures are logged and skipped; the returned count
// covers successful reverts only.
func (d *Dispatcher) UnlockStuck(ctx context.Context) (int, error) {
	store, err := d.stores(ctx)
	if err != nil {
		return 0, err
	}

	stuck, err := store.StuckSendingIssues(ctx)
	if err != nil {
		return 0, err
	}

	unlocked := 0
	for _, issue := range stuck {
		if err := store.SetIssueStatus(ctx, issue.ID, types.IssueStatusScheduled); err != nil {
			d.logger.Error("stuck issue unlock failed", "issue_id", issue.ID, "error", err)
			continue
		}
		d.logger.Warn("stuck issue unlocked", "issue_id", issue.ID, "slug", issue.Slug)
		unlocked++
	}
	return unlocked, nil
}

func (d *Dispatcher) revertToScheduled(ctx context.Context, store Store, issueID string, log types.Logger) {
	if err := store.SetIssueStatus(ctx, issueID, types.IssueStatusScheduled); err != nil {
		log.Error("revert to scheduled failed", "error", err)
	}
}

// dedupe removes recipients whose normalized email was already seen,
// keeping the first occurrence.
func dedupe(recipients []types.Recipient) []types.Recipient {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]types.Recipient, 0, len(recipients))
	for _, r := range recipients {
		key := types.NormalizeEmail(r.Email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func truncateError(msg string) string {
	if len(msg) <= maxLoggedErrorLen {
		return msg
	}
	return msg[:maxLoggedErrorLen]
}

func parseSendAt(value string, fallback time.Time) time.Time {
	for _, layout := range sendAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return fallback
}

// String implements fmt.Stringer for log readability.
func (t Totals) String() string {
	return fmt.Sprintf("issue=%s targeted=%d sent=%d failed=%d skipped=%d would_send=%d dry_run=%t",
		t.IssueID, t.Targeted, t.Sent, t.Failed, t.Skipped, t.WouldSend, t.DryRun)
}
