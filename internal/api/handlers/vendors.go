package handlers

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mailroom/internal/compliance"
	"mailroom/internal/core"
	"mailroom/internal/external"
	"mailroom/internal/render"
	"mailroom/internal/types"
)

const complianceNoticeTemplate = "compliance_notice"

// VendorStore is the store slice the vendor handlers need.
type VendorStore interface {
	VendorByID(ctx context.Context, id string) (*types.Vendor, error)
	VendorDocumentByID(ctx context.Context, id string) (*types.VendorDocument, error)
	VendorDocumentURL(recordID, filename string) string
}

// VendorStoreProvider yields a freshly authenticated store handle per
// request.
type VendorStoreProvider func(ctx context.Context) (VendorStore, error)

// VendorsHandler serves vendor compliance endpoints.
type VendorsHandler struct {
	stores   VendorStoreProvider
	mailer   external.Mailer
	renderer Renderer
	clock    types.Clock
	logger   *slog.Logger
	cfg      EmailsConfig
}

// NewVendorsHandler constructs the handler with its dependencies.
func NewVendorsHandler(
	stores VendorStoreProvider,
	mailer external.Mailer,
	renderer Renderer,
	clock types.Clock,
	logger *slog.Logger,
	cfg EmailsConfig,
) *VendorsHandler {
	return &VendorsHandler{
		stores:   stores,
		mailer:   mailer,
		renderer: renderer,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
}

// RegisterRoutes mounts the vendor endpoints on the given router.
func (h *VendorsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/vendors/{id}/compliance", h.HandleCompliance)
	r.Post("/vendors/{id}/compliance-notice", h.HandleComplianceNotice)
}

type complianceResponse struct {
	VendorID            string                 `json:"vendor_id"`
	Issues              []compliance.IssueCode `json:"issues"`
	DaysUntilExpiration *int                   `json:"days_until_expiration"`
	Summary             string                 `json:"summary"`
}

// HandleCompliance returns the current document compliance state for a
// vendor as JSON.
func (h *VendorsHandler) HandleCompliance(w http.ResponseWriter, r *http.Request) {
	_, vendor, err := h.fetchVendor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result := compliance.Evaluate(*vendor, h.clock.Now())
	issues := result.Issues
	if issues == nil {
		issues = []compliance.IssueCode{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: complianceResponse{
		VendorID:            vendor.ID,
		Issues:              issues,
		DaysUntilExpiration: result.DaysUntilExpiration,
		Summary:             compliance.Summary(result),
	}})
}

type complianceNoticeResponse struct {
	Reference string                 `json:"reference"`
	Issues    []compliance.IssueCode `json:"issues"`
}

// HandleComplianceNotice evaluates a vendor's documents and emails the
// findings to the vendor's contact address. A fully compliant vendor still
// receives the notice; its body states that all documents are current.
func (h *VendorsHandler) HandleComplianceNotice(w http.ResponseWriter, r *http.Request) {
	store, vendor, err := h.fetchVendor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if types.NormalizeEmail(vendor.ContactEmail) == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"vendor has no contact email on file",
			nil,
		))
		return
	}

	result := compliance.Evaluate(*vendor, h.clock.Now())

	days := any(nil)
	if result.DaysUntilExpiration != nil {
		days = *result.DaysUntilExpiration
	}

	// Vendor-entered values are escaped before substitution; the renderer
	// itself never escapes.
	body, err := h.renderer.Render(complianceNoticeTemplate, map[string]any{
		"vendor": map[string]any{
			"name":  html.EscapeString(vendor.Name),
			"phone": html.EscapeString(render.FormatPhone(vendor.ContactPhone)),
		},
		"compliance": map[string]any{
			"summary":         html.EscapeString(compliance.Summary(result)),
			"days":            days,
			"expiration_date": render.FormatDate(vendor.COIExpiration),
			"coi_link":        h.coiLink(r.Context(), store, vendor),
		},
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	reference, err := h.mailer.Send(r.Context(), external.Message{
		From:     h.cfg.FromAddress,
		FromName: h.cfg.FromName,
		To:       types.NormalizeEmail(vendor.ContactEmail),
		Subject:  "Document compliance status",
		HTML:     body,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "compliance notice sent",
		"vendor_id", vendor.ID, "issue_count", len(result.Issues))

	issues := result.Issues
	if issues == nil {
		issues = []compliance.IssueCode{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: complianceNoticeResponse{
		Reference: reference,
		Issues:    issues,
	}})
}

// coiLink builds an HTML fragment linking to the vendor's certificate of
// insurance on file, or "" when the vendor has none. Lookup failures degrade
// to an omitted link; the notice itself still goes out.
func (h *VendorsHandler) coiLink(ctx context.Context, store VendorStore, vendor *types.Vendor) string {
	if vendor.COIDocument == "" {
		return ""
	}

	doc, err := store.VendorDocumentByID(ctx, vendor.COIDocument)
	if err != nil {
		h.logger.WarnContext(ctx, "coi document lookup failed",
			"vendor_id", vendor.ID, "document_id", vendor.COIDocument, "error", err)
		return ""
	}
	if doc.File == "" {
		return ""
	}

	url := store.VendorDocumentURL(doc.ID, doc.File)
	return fmt.Sprintf(`<p>The certificate of insurance we have on file: <a href="%s">view document</a></p>`,
		html.EscapeString(url))
}

func (h *VendorsHandler) fetchVendor(r *http.Request) (VendorStore, *types.Vendor, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return nil, nil, types.NewAppError(types.ErrCodeValidationMissingField, "vendor id is required", nil)
	}

	store, err := h.stores(r.Context())
	if err != nil {
		return nil, nil, err
	}

	vendor, err := store.VendorByID(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	return store, vendor, nil
}
