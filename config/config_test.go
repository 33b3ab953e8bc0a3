package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Client.RefreshInterval)
	assert.Equal(t, 2*time.Second, cfg.Client.TypingIdle)
	assert.Equal(t, 3*time.Second, cfg.Client.TypingTimeout)
	assert.Equal(t, time.Second, cfg.Client.ReconnectInitial)
	assert.Equal(t, 5*time.Second, cfg.Client.ReconnectMax)
	assert.Equal(t, 5, cfg.Client.ReconnectAttempts)
	assert.Equal(t, []string{"ws://localhost:9090/ws"}, cfg.Client.LiveURLs)
	assert.NoError(t, cfg.ValidateServer())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("CHAT_LIVE_URLS", "wss://compat.example.com/ws,wss://example.com/ws")
	t.Setenv("CHAT_RECONNECT_ATTEMPTS", "3")
	t.Setenv("CHAT_TYPING_TIMEOUT", "1500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"wss://compat.example.com/ws", "wss://example.com/ws"}, cfg.Client.LiveURLs)
	assert.Equal(t, 3, cfg.Client.ReconnectAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.Client.TypingTimeout)
}

func TestValidateServerRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateServer())
}

func TestLoadRejectsBadReconnectDelays(t *testing.T) {
	t.Setenv("CHAT_RECONNECT_INITIAL", "10s")
	t.Setenv("CHAT_RECONNECT_MAX", "5s")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("CHAT_REFRESH_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsZeroReconnectAttempts(t *testing.T) {
	t.Setenv("CHAT_RECONNECT_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHAT_RECONNECT_ATTEMPTS")
}
