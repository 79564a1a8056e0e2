package dep

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/config"
)

func newTestBrevoService(t *testing.T, handler http.HandlerFunc) EmailService {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewBrevoService(context.Background(), config.Brevo{
		APIKey:  "key-123",
		BaseURL: srv.URL + "/",
	}, config.Mail{
		SenderName:  "E-Cell",
		SenderEmail: "ecell@kccoe.edu",
	})
	require.NoError(t, err)

	return s
}

func TestBrevoService_SendEmail(t *testing.T) {
	t.Parallel()

	var body map[string]interface{}
	s := newTestBrevoService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathSendEmail, r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("api-key"))

		b, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(b, &body))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<abc@smtp-relay.brevo.com>"}`))
	})

	outcome := s.SendEmail(context.Background(), &Email{
		To:          "a@x.io",
		Subject:     "Hi",
		HtmlContent: "<p>Hi</p>",
		Campaign:    "launch",
	})
	require.True(t, outcome.Success, outcome.Error)
	require.Equal(t, "<abc@smtp-relay.brevo.com>", outcome.MessageID)

	require.Equal(t, "Hi", body["subject"])
	require.Equal(t, []interface{}{"launch", "custom"}, body["tags"])
	require.NotContains(t, body, "scheduledAt")
}

func TestBrevoService_SendEmailRejected(t *testing.T) {
	t.Parallel()

	s := newTestBrevoService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid_parameter","message":"invalid recipient"}`))
	})

	outcome := s.SendEmail(context.Background(), &Email{To: "bad", Subject: "Hi"})
	require.False(t, outcome.Success)
	require.Equal(t, "encounter brevo error: invalid recipient, code: invalid_parameter", outcome.Error)
}

func TestBrevoService_TestConnection(t *testing.T) {
	t.Parallel()

	ok := newTestBrevoService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathGetAccount, r.URL.Path)
		_, _ = w.Write([]byte(`{"email":"ecell@kccoe.edu"}`))
	})
	require.NoError(t, ok.TestConnection(context.Background()))

	unauthorized := newTestBrevoService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized","message":"Key not found"}`))
	})
	require.EqualError(t, unauthorized.TestConnection(context.Background()), "encounter brevo error: Key not found, code: unauthorized")
}

func TestNewBrevoService_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewBrevoService(context.Background(), config.Brevo{}, config.Mail{})
	require.Error(t, err)
}
