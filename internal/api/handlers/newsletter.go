package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mailroom/internal/core"
	"mailroom/internal/newsletter"
	"mailroom/internal/types"
)

// Dispatcher is the newsletter slice the handler needs.
type Dispatcher interface {
	DispatchDue(ctx context.Context, opts newsletter.Options) (*newsletter.Totals, error)
	TestSend(ctx context.Context, req newsletter.TestSendRequest) (string, error)
	RequeueFailed(ctx context.Context, issueID string) (int, error)
}

// NewsletterHandler serves the newsletter dispatch endpoints.
type NewsletterHandler struct {
	dispatcher Dispatcher
	validator  *core.Validator
	logger     *slog.Logger
}

// NewNewsletterHandler constructs the handler with its dependencies.
func NewNewsletterHandler(dispatcher Dispatcher, validator *core.Validator, logger *slog.Logger) *NewsletterHandler {
	return &NewsletterHandler{
		dispatcher: dispatcher,
		validator:  validator,
		logger:     logger,
	}
}

// RegisterRoutes mounts the newsletter endpoints on the given router.
func (h *NewsletterHandler) RegisterRoutes(r chi.Router) {
	r.Post("/newsletter/dispatch", h.HandleDispatch)
	r.Post("/newsletter/test-send", h.HandleTestSend)
	r.Post("/newsletter/requeue-failed", h.HandleRequeueFailed)
}

type dispatchResponse struct {
	Message string             `json:"message,omitempty"`
	Totals  *newsletter.Totals `json:"totals,omitempty"`
}

// HandleDispatch runs the dispatch loop over the oldest due issue.
// Query parameters: dryRun (boolean) and limit (positive integer).
func (h *NewsletterHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	opts, err := parseDispatchOptions(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	totals, err := h.dispatcher.DispatchDue(r.Context(), opts)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if totals == nil {
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: dispatchResponse{
			Message: "no newsletter issue is due",
		}})
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: dispatchResponse{Totals: totals}})
}

func parseDispatchOptions(r *http.Request) (newsletter.Options, error) {
	var opts newsletter.Options

	switch r.URL.Query().Get("dryRun") {
	case "", "false", "0":
	case "true", "1":
		opts.DryRun = true
	default:
		return opts, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"dryRun must be true or false",
			nil,
		)
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return opts, types.NewAppError(
				types.ErrCodeValidationInvalidLimit,
				"limit must be a positive integer",
				err,
			)
		}
		opts.Limit = limit
	}

	return opts, nil
}

type testSendRequest struct {
	IssueID string `json:"issue_id"`
	Slug    string `json:"slug"`
	To      string `json:"to" validate:"required,email"`
}

// HandleTestSend relays a single preview of an issue, identified by id or
// slug, to one address.
func (h *NewsletterHandler) HandleTestSend(w http.ResponseWriter, r *http.Request) {
	var req testSendRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.IssueID == "" && req.Slug == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"either issue_id or slug is required",
			nil,
		))
		return
	}

	reference, err := h.dispatcher.TestSend(r.Context(), newsletter.TestSendRequest{
		IssueID: req.IssueID,
		Slug:    req.Slug,
		To:      req.To,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "newsletter test send completed", "slug", req.Slug)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sendResponse{Reference: reference}})
}

type requeueRequest struct {
	IssueID string `json:"issue_id" validate:"required"`
}

type requeueResponse struct {
	Requeued int `json:"requeued"`
}

// HandleRequeueFailed clears failed send-log entries for an issue and puts
// it back in the scheduled state so the next dispatch retries those
// recipients.
func (h *NewsletterHandler) HandleRequeueFailed(w http.ResponseWriter, r *http.Request) {
	var req requeueRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	requeued, err := h.dispatcher.RequeueFailed(r.Context(), req.IssueID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "failed sends requeued", "issue_id", req.IssueID, "requeued", requeued)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: requeueResponse{Requeued: requeued}})
}
