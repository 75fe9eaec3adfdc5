package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
telegram:
  token: "123:abc"
gemini:
  api_keys: ["primary", "secondary"]
tracker:
  timezone: "UTC"
tenants:
  - id: alpha
    name: Alpha
    access_key: alpha-key
  - id: beta
    name: Beta
    access_key: beta-key
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("file with defaults", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, validYAML))
		require.NoError(t, err)

		assert.Equal(t, "123:abc", cfg.Telegram.Token)
		assert.Equal(t, []string{"primary", "secondary"}, cfg.Gemini.APIKeys)
		assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.ModelName)
		assert.Equal(t, 30*time.Second, cfg.Gemini.Timeout)
		assert.Equal(t, 45*time.Minute, cfg.Tracker.CorrectionThreshold)
		assert.Equal(t, 8, cfg.Tracker.MinPhoneDigits)
		assert.Equal(t, "sqlite", cfg.Storage.Backend)
		assert.Equal(t, time.UTC.String(), cfg.Tracker.Location.String())
		assert.Equal(t, 20*time.Minute, cfg.Report.CriticalBelow)
		assert.True(t, cfg.Scheduler.Tasks["daily_rollover"].Enabled)
		assert.Equal(t, "0 0 0 * * *", cfg.Scheduler.Tasks["daily_rollover"].Schedule)
		assert.Len(t, cfg.Tenants, 2)
		assert.NotEmpty(t, cfg.Telegram.Commands["add_group"])
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("UPTIMEBOT_TELEGRAM_TOKEN", "999:env")
		t.Setenv("UPTIMEBOT_TRACKER_MIN_PHONE_DIGITS", "10")
		t.Setenv("UPTIMEBOT_GEMINI_API_KEYS", "one,two,three")

		cfg, err := LoadConfig(writeConfig(t, validYAML))
		require.NoError(t, err)
		assert.Equal(t, "999:env", cfg.Telegram.Token)
		assert.Equal(t, 10, cfg.Tracker.MinPhoneDigits)
		assert.Equal(t, []string{"one", "two", "three"}, cfg.Gemini.APIKeys)
	})

	t.Run("missing file uses environment", func(t *testing.T) {
		t.Setenv("UPTIMEBOT_TELEGRAM_TOKEN", "1:x")
		t.Setenv("UPTIMEBOT_GEMINI_API_KEYS", "k")

		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "1:x", cfg.Telegram.Token)
		assert.Equal(t, "Europe/Kyiv", cfg.Tracker.Timezone)
	})

	invalid := []struct {
		name string
		body string
	}{
		{name: "missing token", body: "gemini:\n  api_keys: [k]\n"},
		{name: "bad backend", body: validYAML + "storage:\n  backend: redis\n"},
		{name: "bad timezone", body: "telegram:\n  token: t\ngemini:\n  api_keys: [k]\ntracker:\n  timezone: Mars/Base\n"},
		{name: "duplicate tenant", body: "telegram:\n  token: t\ngemini:\n  api_keys: [k]\ntenants:\n  - {id: a, access_key: key-1}\n  - {id: a, access_key: key-2}\n"},
		{name: "tenant id with dot", body: "telegram:\n  token: t\ngemini:\n  api_keys: [k]\ntenants:\n  - {id: a.b, access_key: key-1}\n"},
		{name: "tenant id with slash", body: "telegram:\n  token: t\ngemini:\n  api_keys: [k]\ntenants:\n  - {id: ../x, access_key: key-1}\n"},
		{name: "warning below critical", body: validYAML + "report:\n  critical_below: 30m\n  warning_below: 10m\n"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestTenantLookup(t *testing.T) {
	t.Parallel()
	cfg := &Config{Tenants: []TenantConfig{{ID: "alpha", AccessKey: "k1"}, {ID: "beta", AccessKey: "k2"}}}

	tenant, ok := cfg.TenantByAccessKey("k2")
	assert.True(t, ok)
	assert.Equal(t, "beta", tenant.ID)

	_, ok = cfg.TenantByAccessKey("nope")
	assert.False(t, ok)

	tenant, ok = cfg.TenantByID("alpha")
	assert.True(t, ok)
	assert.Equal(t, "k1", tenant.AccessKey)
}
