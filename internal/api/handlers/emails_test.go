package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailroom/internal/core"
	"mailroom/internal/external"
	"mailroom/internal/types"
	"mailroom/internal/verification"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

type mockMailer struct {
	sent    []external.Message
	sendErr error
}

func (m *mockMailer) Send(_ context.Context, msg external.Message) (string, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, msg)
	return "ref-1", nil
}

type staticRenderer struct{}

func (staticRenderer) Render(name string, data map[string]any) (string, error) {
	link, _ := data["verification_link"].(string)
	return "<html>" + name + " " + link + "</html>", nil
}

type mockVerifier struct {
	verifyFn      func(ctx context.Context, token string) (*verification.Outcome, error)
	sendSuccessFn func(ctx context.Context, to, name, clientName string) (string, error)
}

func (m *mockVerifier) VerifyAndNotify(ctx context.Context, token string) (*verification.Outcome, error) {
	return m.verifyFn(ctx, token)
}

func (m *mockVerifier) SendSuccessEmail(ctx context.Context, to, name, clientName string) (string, error) {
	return m.sendSuccessFn(ctx, to, name, clientName)
}

func newEmailsRouter(verifier *mockVerifier, mailer *mockMailer) *chi.Mux {
	h := NewEmailsHandler(verifier, mailer, staticRenderer{}, testValidator(), testLogger(), EmailsConfig{
		FromAddress:   "support@predictiveaf.com",
		FromName:      "PredictiveAF",
		PublicBaseURL: "https://mail.example.com",
	})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandleWelcomeSendsEmail(t *testing.T) {
	mailer := &mockMailer{}
	router := newEmailsRouter(&mockVerifier{}, mailer)

	body := `{"client":"Acme","to":"dana@acme.com","subject":"Welcome aboard","name":"Dana"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/emails/welcome", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "dana@acme.com", msg.To)
	assert.Equal(t, "Welcome aboard", msg.Subject)
	assert.Contains(t, msg.HTML, "https://mail.example.com/v1/verify-email?token=dana%40acme.com")

	var resp struct {
		Data sendResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ref-1", resp.Data.Reference)
}

func TestHandleWelcomeValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing to", `{"client":"Acme","subject":"s","name":"Dana"}`},
		{"bad email", `{"client":"Acme","to":"nope","subject":"s","name":"Dana"}`},
		{"missing client", `{"to":"a@x.com","subject":"s","name":"Dana"}`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &mockMailer{}
			router := newEmailsRouter(&mockVerifier{}, mailer)

			var reader io.Reader
			if tt.body != "" {
				reader = strings.NewReader(tt.body)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/emails/welcome", reader))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, mailer.sent, "invalid requests must not relay mail")
		})
	}
}

func TestHandleWelcomeMailFailure(t *testing.T) {
	mailer := &mockMailer{sendErr: types.NewAppError(types.ErrCodeUpstreamMail, "relay down", nil)}
	router := newEmailsRouter(&mockVerifier{}, mailer)

	body := `{"client":"Acme","to":"dana@acme.com","subject":"s","name":"Dana"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/emails/welcome", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeUpstreamMail))
}

func TestHandleVerifyEmailReturnsPage(t *testing.T) {
	verifier := &mockVerifier{
		verifyFn: func(_ context.Context, token string) (*verification.Outcome, error) {
			assert.Equal(t, "dana@acme.com", token)
			return &verification.Outcome{UserName: "Dana", HTML: "<h1>Verified</h1>"}, nil
		},
	}
	router := newEmailsRouter(verifier, &mockMailer{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/verify-email?token=dana%40acme.com", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Verified")
}

func TestHandleVerifyEmailUnknownToken(t *testing.T) {
	verifier := &mockVerifier{
		verifyFn: func(context.Context, string) (*verification.Outcome, error) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no account matches this verification link", nil)
		},
	}
	router := newEmailsRouter(verifier, &mockMailer{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/verify-email?token=nobody", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleVerifySuccess(t *testing.T) {
	var gotTo, gotName, gotClient string
	verifier := &mockVerifier{
		sendSuccessFn: func(_ context.Context, to, name, clientName string) (string, error) {
			gotTo, gotName, gotClient = to, name, clientName
			return "ref-2", nil
		},
	}
	router := newEmailsRouter(verifier, &mockMailer{})

	body := `{"to":"dana@acme.com","name":"Dana","client":"Acme"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/emails/verify-success", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "dana@acme.com", gotTo)
	assert.Equal(t, "Dana", gotName)
	assert.Equal(t, "Acme", gotClient)
	assert.Contains(t, w.Body.String(), "ref-2")
}
