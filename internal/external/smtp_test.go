package external

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"mailroom/internal/config"
	"mailroom/internal/types"
)

func newTestMailer(sendFn func(*gomail.Message) error) *SMTPMailer {
	return NewSMTPMailer(config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "relay",
		Password: types.SecretString("relay-secret"),
	}, discardLogger(), WithSendFunc(sendFn))
}

func TestSendBuildsMessage(t *testing.T) {
	var captured *gomail.Message
	m := newTestMailer(func(msg *gomail.Message) error {
		captured = msg
		return nil
	})

	ref, err := m.Send(context.Background(), Message{
		From:     "support@predictiveaf.com",
		FromName: "PredictiveAF",
		To:       "rep@example.com",
		Subject:  "August Newsletter",
		HTML:     "<h1>hello</h1>",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	require.NotNil(t, captured)
	assert.Equal(t, []string{"rep@example.com"}, captured.GetHeader("To"))
	assert.Equal(t, []string{"August Newsletter"}, captured.GetHeader("Subject"))
	from := captured.GetHeader("From")
	require.Len(t, from, 1)
	assert.Contains(t, from[0], "support@predictiveaf.com")
	assert.Contains(t, from[0], "PredictiveAF")
}

func TestSendListsHTMLPartLast(t *testing.T) {
	var captured *gomail.Message
	m := newTestMailer(func(msg *gomail.Message) error {
		captured = msg
		return nil
	})

	_, err := m.Send(context.Background(), Message{
		From:    "a@x.com",
		To:      "b@x.com",
		Subject: "s",
		HTML:    "<h1>rich</h1>",
		Text:    "plain rendition",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = captured.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	plainIdx := strings.Index(raw, "text/plain")
	htmlIdx := strings.Index(raw, "text/html")
	require.GreaterOrEqual(t, plainIdx, 0)
	require.GreaterOrEqual(t, htmlIdx, 0)
	assert.Contains(t, raw, "multipart/alternative")
	assert.Less(t, plainIdx, htmlIdx, "alternative parts go least preferred first, html last")
}

func TestSendHTMLOnlyHasSinglePart(t *testing.T) {
	var captured *gomail.Message
	m := newTestMailer(func(msg *gomail.Message) error {
		captured = msg
		return nil
	})

	_, err := m.Send(context.Background(), Message{
		From: "a@x.com", To: "b@x.com", Subject: "s", HTML: "<h1>rich</h1>",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = captured.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, "text/html")
	assert.NotContains(t, raw, "text/plain")
	assert.NotContains(t, raw, "multipart/alternative")
}

func TestSendEmptyRecipient(t *testing.T) {
	m := newTestMailer(func(*gomail.Message) error {
		t.Error("relay must not be called without a recipient")
		return nil
	})

	_, err := m.Send(context.Background(), Message{From: "a@x.com", Subject: "s", HTML: "b"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
}

func TestSendRelayFailure(t *testing.T) {
	m := newTestMailer(func(*gomail.Message) error {
		return errors.New("550 mailbox unavailable")
	})

	_, err := m.Send(context.Background(), Message{
		From: "a@x.com", To: "b@x.com", Subject: "s", HTML: "b",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamMail, appErr.Code)
}

func TestSendHonorsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := newTestMailer(func(*gomail.Message) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Send(ctx, Message{From: "a@x.com", To: "b@x.com", Subject: "s", HTML: "b"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamMail, appErr.Code)
	assert.ErrorIs(t, appErr.Err, context.DeadlineExceeded)
}

func TestSendReferencesAreUnique(t *testing.T) {
	m := newTestMailer(func(*gomail.Message) error { return nil })

	msg := Message{From: "a@x.com", To: "b@x.com", Subject: "s", HTML: "b"}
	ref1, err := m.Send(context.Background(), msg)
	require.NoError(t, err)
	ref2, err := m.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.NotEqual(t, ref1, ref2)
	assert.False(t, strings.Contains(ref1, " "))
}
