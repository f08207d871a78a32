package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailroom/internal/newsletter"
	"mailroom/internal/types"
)

type mockDispatcher struct {
	dispatchFn func(ctx context.Context, opts newsletter.Options) (*newsletter.Totals, error)
	testSendFn func(ctx context.Context, req newsletter.TestSendRequest) (string, error)
	requeueFn  func(ctx context.Context, issueID string) (int, error)
}

func (m *mockDispatcher) DispatchDue(ctx context.Context, opts newsletter.Options) (*newsletter.Totals, error) {
	return m.dispatchFn(ctx, opts)
}

func (m *mockDispatcher) TestSend(ctx context.Context, req newsletter.TestSendRequest) (string, error) {
	return m.testSendFn(ctx, req)
}

func (m *mockDispatcher) RequeueFailed(ctx context.Context, issueID string) (int, error) {
	return m.requeueFn(ctx, issueID)
}

func newNewsletterRouter(d *mockDispatcher) *chi.Mux {
	h := NewNewsletterHandler(d, testValidator(), testLogger())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandleDispatchReturnsTotals(t *testing.T) {
	var gotOpts newsletter.Options
	d := &mockDispatcher{
		dispatchFn: func(_ context.Context, opts newsletter.Options) (*newsletter.Totals, error) {
			gotOpts = opts
			return &newsletter.Totals{IssueID: "iss1", Slug: "august", Targeted: 5, Sent: 5}, nil
		},
	}
	router := newNewsletterRouter(d)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/newsletter/dispatch?dryRun=true&limit=5", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, gotOpts.DryRun)
	assert.Equal(t, 5, gotOpts.Limit)

	var resp struct {
		Data dispatchResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Totals)
	assert.Equal(t, "iss1", resp.Data.Totals.IssueID)
	assert.Equal(t, 5, resp.Data.Totals.Sent)
}

func TestHandleDispatchNoIssueDue(t *testing.T) {
	d := &mockDispatcher{
		dispatchFn: func(context.Context, newsletter.Options) (*newsletter.Totals, error) {
			return nil, nil
		},
	}
	router := newNewsletterRouter(d)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/newsletter/dispatch", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no newsletter issue is due")
}

func TestHandleDispatchInvalidLimit(t *testing.T) {
	for _, limit := range []string{"abc", "-1", "0"} {
		t.Run(limit, func(t *testing.T) {
			called := false
			d := &mockDispatcher{
				dispatchFn: func(context.Context, newsletter.Options) (*newsletter.Totals, error) {
					called = true
					return nil, nil
				},
			}
			router := newNewsletterRouter(d)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/newsletter/dispatch?limit="+limit, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), string(types.ErrCodeValidationInvalidLimit))
			assert.False(t, called, "invalid limit must not start a dispatch")
		})
	}
}

func TestHandleDispatchUpstreamFailure(t *testing.T) {
	d := &mockDispatcher{
		dispatchFn: func(context.Context, newsletter.Options) (*newsletter.Totals, error) {
			return nil, types.NewAppError(types.ErrCodeUpstreamStore, "store unreachable", nil)
		},
	}
	router := newNewsletterRouter(d)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/newsletter/dispatch", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleTestSendBySlug(t *testing.T) {
	var got newsletter.TestSendRequest
	d := &mockDispatcher{
		testSendFn: func(_ context.Context, req newsletter.TestSendRequest) (string, error) {
			got = req
			return "ref-9", nil
		},
	}
	router := newNewsletterRouter(d)

	body := `{"slug":"august-2026","to":"preview@x.com"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/newsletter/test-send", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "august-2026", got.Slug)
	assert.Equal(t, "preview@x.com", got.To)
	assert.Contains(t, w.Body.String(), "ref-9")
}

func TestHandleTestSendRequiresIdentifier(t *testing.T) {
	d := &mockDispatcher{
		testSendFn: func(context.Context, newsletter.TestSendRequest) (string, error) {
			t.Error("dispatcher must not be called without an issue identifier")
			return "", nil
		},
	}
	router := newNewsletterRouter(d)

	body := `{"to":"preview@x.com"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/newsletter/test-send", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeValidationMissingField))
}

func TestHandleRequeueFailed(t *testing.T) {
	var gotIssueID string
	d := &mockDispatcher{
		requeueFn: func(_ context.Context, issueID string) (int, error) {
			gotIssueID = issueID
			return 4, nil
		},
	}
	router := newNewsletterRouter(d)

	body := `{"issue_id":"iss1"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/newsletter/requeue-failed", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "iss1", gotIssueID)
	assert.Contains(t, w.Body.String(), `"requeued":4`)
}

func TestHandleRequeueFailedRequiresIssueID(t *testing.T) {
	d := &mockDispatcher{
		requeueFn: func(context.Context, string) (int, error) {
			t.Error("dispatcher must not be called without an issue id")
			return 0, nil
		},
	}
	router := newNewsletterRouter(d)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/newsletter/requeue-failed", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeValidationMissingField))
}

func TestHandleTestSendRequiresValidEmail(t *testing.T) {
	d := &mockDispatcher{}
	router := newNewsletterRouter(d)

	body := `{"slug":"august-2026","to":"not-an-email"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/newsletter/test-send", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
