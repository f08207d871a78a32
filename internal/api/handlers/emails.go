// Package handlers contains the HTTP handlers for the v1 API surface. Each
// handler declares narrow interfaces for exactly the collaborators it needs;
// concrete implementations are injected by the application entry point.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"mailroom/internal/core"
	"mailroom/internal/external"
	"mailroom/internal/verification"
)

const welcomeTemplate = "welcome"

// VerificationService is the verification flow slice the email handlers need.
type VerificationService interface {
	VerifyAndNotify(ctx context.Context, token string) (*verification.Outcome, error)
	SendSuccessEmail(ctx context.Context, to, name, clientName string) (string, error)
}

// Renderer is the template engine slice the handlers need.
type Renderer interface {
	Render(name string, data map[string]any) (string, error)
}

// EmailsConfig carries sender identity and the public base URL used to build
// verification links.
type EmailsConfig struct {
	FromAddress   string
	FromName      string
	PublicBaseURL string
}

// EmailsHandler serves the welcome and verification email endpoints.
type EmailsHandler struct {
	verifier  VerificationService
	mailer    external.Mailer
	renderer  Renderer
	validator *core.Validator
	logger    *slog.Logger
	cfg       EmailsConfig
}

// NewEmailsHandler constructs the handler with its dependencies.
func NewEmailsHandler(
	verifier VerificationService,
	mailer external.Mailer,
	renderer Renderer,
	validator *core.Validator,
	logger *slog.Logger,
	cfg EmailsConfig,
) *EmailsHandler {
	return &EmailsHandler{
		verifier:  verifier,
		mailer:    mailer,
		renderer:  renderer,
		validator: validator,
		logger:    logger,
		cfg:       cfg,
	}
}

// RegisterRoutes mounts the email endpoints on the given router.
func (h *EmailsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/emails/welcome", h.HandleWelcome)
	r.Post("/emails/verify-success", h.HandleVerifySuccess)
	r.Get("/verify-email", h.HandleVerifyEmail)
}

type welcomeRequest struct {
	Client  string `json:"client" validate:"required"`
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Name    string `json:"name" validate:"required"`
}

type sendResponse struct {
	Reference string `json:"reference"`
}

// HandleWelcome renders and relays the welcome email, including the
// verification link the recipient must follow.
func (h *EmailsHandler) HandleWelcome(w http.ResponseWriter, r *http.Request) {
	var req welcomeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	link := h.cfg.PublicBaseURL + "/v1/verify-email?token=" + url.QueryEscape(req.To)

	body, err := h.renderer.Render(welcomeTemplate, map[string]any{
		"user":              map[string]any{"name": req.Name, "email": req.To},
		"client":            map[string]any{"name": req.Client},
		"verification_link": link,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	reference, err := h.mailer.Send(r.Context(), external.Message{
		From:     h.cfg.FromAddress,
		FromName: h.cfg.FromName,
		To:       req.To,
		Subject:  req.Subject,
		HTML:     body,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "welcome email sent", "client", req.Client)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sendResponse{Reference: reference}})
}

type verifySuccessRequest struct {
	To     string `json:"to" validate:"required,email"`
	Name   string `json:"name" validate:"required"`
	Client string `json:"client"`
}

// HandleVerifySuccess renders and relays the verification confirmation email
// on its own, without flipping any verification flags.
func (h *EmailsHandler) HandleVerifySuccess(w http.ResponseWriter, r *http.Request) {
	var req verifySuccessRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	reference, err := h.verifier.SendSuccessEmail(r.Context(), req.To, req.Name, req.Client)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sendResponse{Reference: reference}})
}

// HandleVerifyEmail completes a verification link click. The full flow
// (record updates plus confirmation email) runs inside this request; the
// response is the human-facing success page.
func (h *EmailsHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	outcome, err := h.verifier.VerifyAndNotify(r.Context(), token)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.HTML(w, http.StatusOK, outcome.HTML)
}
