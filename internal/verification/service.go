// Package verification implements the email verification flow: a signed-up
// user follows a link carrying their address as the token, the service flips
// the verified flag on their personnel and client records, and a confirmation
// email goes out in the same request.
package verification

import (
	"context"

	"mailroom/internal/external"
	"mailroom/internal/types"
)

const (
	successEmailTemplate = "verify_success"
	successPageTemplate  = "verify_page"
)

// Store is the slice of the document store the verification flow needs.
type Store interface {
	UserByEmail(ctx context.Context, email string) (*types.User, error)
	PersonnelByUser(ctx context.Context, userID string) (*types.Personnel, error)
	MarkPersonnelVerified(ctx context.Context, id string) error
	ClientByManager(ctx context.Context, userID string) (*types.Client, error)
	MarkClientVerified(ctx context.Context, id string) error
}

// StoreProvider yields a freshly authenticated store handle per request.
type StoreProvider func(ctx context.Context) (Store, error)

// Renderer is the template engine slice the service needs.
type Renderer interface {
	Render(name string, data map[string]any) (string, error)
}

// Config carries sender identity for outbound confirmation email.
type Config struct {
	FromAddress string
	FromName    string
}

// Outcome is the result of a completed verification.
type Outcome struct {
	UserName   string
	ClientName string
	// HTML is the browser-facing success page.
	HTML string
}

// Service runs the verification flow.
type Service struct {
	stores   StoreProvider
	mailer   external.Mailer
	renderer Renderer
	logger   types.Logger
	cfg      Config
}

// NewService wires a verification service from its collaborators.
func NewService(stores StoreProvider, mailer external.Mailer, renderer Renderer, logger types.Logger, cfg Config) *Service {
	return &Service{
		stores:   stores,
		mailer:   mailer,
		renderer: renderer,
		logger:   logger,
		cfg:      cfg,
	}
}

// VerifyAndNotify resolves the token to a user, marks the linked personnel
// and client records verified, and sends the confirmation email before
// returning the browser success page.
//
// The token is the user's email address. A user without a personnel or
// client record is still verified; those updates are simply skipped.
func (s *Service) VerifyAndNotify(ctx context.Context, token string) (*Outcome, error) {
	email := types.NormalizeEmail(token)
	if email == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "verification token is required", nil)
	}

	store, err := s.stores(ctx)
	if err != nil {
		return nil, err
	}

	user, err := store.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no account matches this verification link", nil)
	}

	log := s.logger.With("user_id", user.ID)

	personnel, err := store.PersonnelByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if personnel != nil && !personnel.Verified {
		if err := store.MarkPersonnelVerified(ctx, personnel.ID); err != nil {
			return nil, err
		}
		log.Info("personnel verified", "personnel_id", personnel.ID)
	}

	client, err := store.ClientByManager(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	clientName := ""
	if client != nil {
		clientName = client.Name
		if !client.Verified {
			if err := store.MarkClientVerified(ctx, client.ID); err != nil {
				return nil, err
			}
			log.Info("client verified", "client_id", client.ID)
		}
	}

	name := user.Name
	if personnel != nil && personnel.FullName != "" {
		name = personnel.FullName
	}

	if _, err := s.SendSuccessEmail(ctx, user.Email, name, clientName); err != nil {
		return nil, err
	}

	page, err := s.renderer.Render(successPageTemplate, map[string]any{
		"user":   map[string]any{"name": name},
		"client": map[string]any{"name": clientName},
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{UserName: name, ClientName: clientName, HTML: page}, nil
}

// SendSuccessEmail renders and relays the verification confirmation email.
func (s *Service) SendSuccessEmail(ctx context.Context, to, name, clientName string) (string, error) {
	body, err := s.renderer.Render(successEmailTemplate, map[string]any{
		"user":   map[string]any{"name": name},
		"client": map[string]any{"name": clientName},
	})
	if err != nil {
		return "", err
	}

	return s.mailer.Send(ctx, external.Message{
		From:     s.cfg.FromAddress,
		FromName: s.cfg.FromName,
		To:       to,
		Subject:  "Your email has been verified",
		HTML:     body,
	})
}
