package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(kv map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func TestEnvOnly(t *testing.T) {
	m := NewConfigManager("", env(map[string]string{EnvToken: "tok", EnvAdminID: "42", EnvLogLevel: "debug"}))
	cfg, err := m.Load()
	require.NoError(t, err)
	r, err := Resolve(cfg)
	require.NoError(t, err)

	assert.Equal(t, "tok", r.Token)
	assert.Equal(t, int64(42), r.AdminID)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, DefaultDelay, r.Delay)
	assert.Equal(t, DefaultSessionTTL, r.SessionTTL)
	assert.Equal(t, int64(DefaultMaxUploadBytes), r.MaxUploadBytes)
	assert.Equal(t, DefaultAssetsDir, r.AssetsDir)
	assert.Equal(t, "none", r.StorageDriver)
	assert.Equal(t, DefaultSessionSweep, r.SessionSweep)
	assert.Empty(t, r.Webhook.PublicURL)
}

func TestMissingSecretsFailFast(t *testing.T) {
	_, err := Resolve(&Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingToken))
	assert.True(t, errors.Is(err, ErrMissingAdmin))
	assert.Contains(t, err.Error(), "BOT_TOKEN")

	cfg := &Config{}
	err = ApplyEnv(cfg, env(map[string]string{EnvAdminID: "abc"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_ID")
}

func TestRailwayWebhook(t *testing.T) {
	cases := []struct {
		name   string
		vars   map[string]string
		listen string
		url    string
	}{
		{"polling outside railway", map[string]string{EnvRailwayURL: "https://x.up.railway.app"}, "", ""},
		{"railway without url", map[string]string{EnvRailway: "production"}, "", ""},
		{"railway default port", map[string]string{EnvRailway: "production", EnvRailwayURL: "https://x.up.railway.app/"}, "0.0.0.0:8080", "https://x.up.railway.app/webhook"},
		{"railway bare host", map[string]string{EnvRailway: "production", EnvRailwayURL: "x.up.railway.app", EnvPort: "9000"}, "0.0.0.0:9000", "https://x.up.railway.app/webhook"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			require.NoError(t, ApplyEnv(cfg, env(tc.vars)))
			assert.Equal(t, tc.listen, cfg.Telegram.Webhook.Listen)
			assert.Equal(t, tc.url, cfg.Telegram.Webhook.PublicURL)
		})
	}
}

func TestYAMLFileStrict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zolo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  admin_id: 7
broadcast:
  delay: 200ms
conversation:
  session_ttl: 0s
storage:
  driver: sqlite
  path: ./zolo.db
housekeeping:
  audit_prune: "off"
`), 0o600))

	cfg, err := NewConfigManager(path, env(map[string]string{EnvToken: "tok"})).Load()
	require.NoError(t, err)
	r, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.AdminID)
	assert.Equal(t, 200*time.Millisecond, r.Delay)
	assert.Equal(t, time.Duration(0), r.SessionTTL)
	assert.Equal(t, "sqlite", r.StorageDriver)
	assert.Empty(t, r.AuditPrune)

	require.NoError(t, os.WriteFile(path, []byte("unknown_section: 1\n"), 0o600))
	_, err = NewConfigManager(path, env(nil)).Load()
	require.Error(t, err)
}

func TestResolveRejectsBadValues(t *testing.T) {
	ttl := "-1s"
	cfg := &Config{
		Telegram:     TelegramConfig{Token: "t", AdminID: 1, Webhook: WebhookConfig{Listen: ":8080"}},
		Broadcast:    BroadcastConfig{Delay: "soon"},
		Conversation: ConversationConfig{SessionTTL: &ttl},
		Storage:      StorageConfig{Driver: "redis"},
		Housekeeping: HousekeepingConfig{SessionSweep: "every now and then"},
	}
	_, err := Resolve(cfg)
	require.Error(t, err)
	for _, part := range []string{"broadcast.delay", "session_ttl", "storage.driver", "session_sweep", "webhook"} {
		assert.Contains(t, err.Error(), part)
	}
}

func TestReloadPublishesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zolo.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"broadcast":{"delay":"10ms"}}`), 0o600))

	m := NewConfigManager(path, env(map[string]string{EnvToken: "t", EnvAdminID: "1"}))
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return Validate(cfg) })
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	changed, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(path, []byte(`{"broadcast":{"delay":"20ms"}}`), 0o600))
	changed, err = m.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	got := <-sub
	assert.Equal(t, "20ms", got.Broadcast.Delay)

	require.NoError(t, os.WriteFile(path, []byte(`{"broadcast":{"delay":"bad"}}`), 0o600))
	_, err = m.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, "20ms", m.Get().Broadcast.Delay)
}

func TestSummarizeConfigChange(t *testing.T) {
	a := &Config{Telegram: TelegramConfig{Token: "a"}}
	b := &Config{Telegram: TelegramConfig{Token: "b"}, Broadcast: BroadcastConfig{Delay: "1s"}}
	sections, fields := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"telegram", "broadcast"}, sections)
	assert.NotEmpty(t, fields)
	assert.True(t, RestartRequired(sections))
	assert.False(t, RestartRequired([]string{"broadcast", "logging"}))
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("x", " 90s ")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = parseDuration("x", "")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = parseDuration("broadcast.delay", "-5ms")
	assert.EqualError(t, err, `broadcast.delay: "-5ms" is negative`)
	_, err = parseDuration("broadcast.delay", "fast")
	assert.ErrorContains(t, err, `broadcast.delay: "fast" is not a duration`)
}
