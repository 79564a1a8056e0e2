package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_LoadMissingFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	require.NoError(t, cfg.Load(context.Background(), filepath.Join(t.TempDir(), "nope.json")))
	require.Equal(t, 10, cfg.Dispatch.BatchSize)
	require.Equal(t, time.Second, cfg.Dispatch.BatchDelay())
	require.Equal(t, MailProviderSMTP, cfg.Mail.Provider)
}

func TestConfig_LoadOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mail": {"provider": "brevo", "sender_email": "ops@example.com"},
		"dispatch": {"batch_size": 25, "batch_delay_millis": 250},
		"tracking": {"brokers": ["localhost:9092"], "topic": "email_events"}
	}`), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.Load(context.Background(), path))
	require.Equal(t, MailProviderBrevo, cfg.Mail.Provider)
	require.Equal(t, "ops@example.com", cfg.Mail.SenderEmail)
	require.Equal(t, 25, cfg.Dispatch.BatchSize)
	require.Equal(t, 250*time.Millisecond, cfg.Dispatch.BatchDelay())
	require.True(t, cfg.Tracking.Enabled())
	// untouched sections keep defaults
	require.Equal(t, 587, cfg.SMTP.Port)
}

func TestConfig_LoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "provider", body: `{"mail": {"provider": "pigeon"}}`},
		{name: "batch size", body: `{"dispatch": {"batch_size": 0}}`},
		{name: "batch delay", body: `{"dispatch": {"batch_delay_millis": -1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			require.Error(t, NewConfig().Load(context.Background(), path))
		})
	}
}
