package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 300, cfg.Offer.TTL)
	assert.Equal(t, 15*time.Second, cfg.Health.PeerLeftGrace)
	assert.Equal(t, 5*time.Second, cfg.Health.FailedRecoveryGrace)
	assert.Equal(t, "stun:stun.l.google.com:19302", cfg.Network.ICEServers[0].URLWithScheme())
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secretchat.yaml")
	content := `
offer:
  ttl: 120
handshake:
  answer_command: accept_answer
health:
  peer_left_grace: 30s
network:
  ice_servers:
    - id: "a"
      type: turn
      url: turn.example.org:3478
      username: alice
      credential: secret
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.Offer.TTL)
	assert.Equal(t, "accept_answer", cfg.Handshake.AnswerCommand)
	assert.Equal(t, 30*time.Second, cfg.Health.PeerLeftGrace)
	assert.Equal(t, 5*time.Second, cfg.Health.FailedRecoveryGrace, "незаданные ключи берутся из значений по умолчанию")
	require.Len(t, cfg.Network.ICEServers, 1)
	assert.Equal(t, "turn:turn.example.org:3478", cfg.Network.ICEServers[0].URLWithScheme())
	assert.Equal(t, "alice", cfg.Network.ICEServers[0].Username)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SECRETCHAT_OFFER_TTL", "900")
	t.Setenv("SECRETCHAT_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.Offer.TTL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("ttl out of bounds", func(t *testing.T) {
		t.Setenv("SECRETCHAT_OFFER_TTL", "30")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "offer.ttl")
	})

	t.Run("unknown answer command", func(t *testing.T) {
		t.Setenv("SECRETCHAT_HANDSHAKE_ANSWER_COMMAND", "apply")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "answer_command")
	})
}

func TestClampOfferTTL(t *testing.T) {
	assert.Equal(t, MinOfferTTL, ClampOfferTTL(0))
	assert.Equal(t, 61, ClampOfferTTL(61))
	assert.Equal(t, MaxOfferTTL, ClampOfferTTL(7200))
}

func TestICEServerURLWithScheme(t *testing.T) {
	assert.Equal(t, "stun:example.org:3478", ICEServer{Type: "stun", URL: "example.org:3478"}.URLWithScheme())
	assert.Equal(t, "turn:example.org:3478", ICEServer{Type: "turn", URL: "example.org:3478"}.URLWithScheme())
	assert.Equal(t, "turn:example.org", ICEServer{Type: "stun", URL: "turn:example.org"}.URLWithScheme())
}
