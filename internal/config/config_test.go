package config

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var knownEnv = []string{
	"CONFIG_FILE", "SPEECH_ENDPOINT", "SPEECH_API_VERSION", "SPEECH_REQUEST_TIMEOUT",
	"AUTH_MODE", "PASSWORDLESS_AUTHENTICATION", "SUBSCRIPTION_KEY",
	"AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET", "TOKEN_SCOPE",
	"HTTP_PORT", "CORS_ALLOWED_ORIGINS", "SHUTDOWN_TIMEOUT",
	"POLL_INTERVAL", "MAX_WAIT", "MAX_POLL_ERRORS", "REDIS_ADDR", "JOB_TTL",
	"STORAGE_PROVIDER", "STORAGE_LOCAL_ROOT",
	"GDRIVE_CLIENT_ID", "GDRIVE_CLIENT_SECRET", "GDRIVE_REFRESH_TOKEN", "GDRIVE_FOLDER_ID",
	"AVATAR_VOICE", "AVATAR_TEXT", "AVATAR_CHARACTER", "AVATAR_STYLE",
	"AVATAR_CUSTOMIZED", "AVATAR_BACKGROUND_COLOR", "AVATAR_CUSTOM_VOICES",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range knownEnv {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUBSCRIPTION_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://southeastasia.api.cognitive.microsoft.com", cfg.Speech.Endpoint)
	assert.Equal(t, "2024-04-15-preview", cfg.Speech.APIVersion)
	assert.Equal(t, AuthModeKey, cfg.Auth.Mode)
	assert.Equal(t, "5000", cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 30*time.Minute, cfg.Poll.MaxWait)
	assert.Equal(t, 3, cfg.Poll.MaxErrors)
	assert.Equal(t, StorageNone, cfg.Storage.Provider)
	assert.Equal(t, "en-US-JennyMultilingualNeural", cfg.Avatar.Voice)
	assert.Equal(t, "Lisa", cfg.Avatar.Character)
	assert.Equal(t, "casual-sitting", cfg.Avatar.Style)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadRequiresSubscriptionKey(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUBSCRIPTION_KEY is required")
}

func TestRevokedKeyIsRejected(t *testing.T) {
	clearEnv(t)

	const leaked = "0123456789abcdef0123456789abcdef"
	sum := sha256.Sum256([]byte(leaked))
	digest := hex.EncodeToString(sum[:])
	revokedKeyDigests[digest] = struct{}{}
	t.Cleanup(func() { delete(revokedKeyDigests, digest) })

	t.Setenv("SUBSCRIPTION_KEY", leaked)

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRevokedKey)

	assert.False(t, IsRevokedKey("some-other-key"))
}

func TestPasswordlessSelectsDefaultCredential(t *testing.T) {
	clearEnv(t)
	t.Setenv("PASSWORDLESS_AUTHENTICATION", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, AuthModeDefaultCredential, cfg.Auth.Mode)
	assert.Empty(t, cfg.Auth.SubscriptionKey)
}

func TestExplicitAuthModeWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("PASSWORDLESS_AUTHENTICATION", "true")
	t.Setenv("AUTH_MODE", AuthModeClientCredentials)
	t.Setenv("AZURE_TENANT_ID", "tenant")
	t.Setenv("AZURE_CLIENT_ID", "client")
	t.Setenv("AZURE_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, AuthModeClientCredentials, cfg.Auth.Mode)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUBSCRIPTION_KEY", "test-key")
	t.Setenv("SPEECH_ENDPOINT", "https://westus2.api.cognitive.microsoft.com")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("MAX_WAIT", "10m")
	t.Setenv("MAX_POLL_ERRORS", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("AVATAR_CUSTOMIZED", "true")
	t.Setenv("AVATAR_CUSTOM_VOICES", "MyVoiceNeural = 0a1b2c-deploy, OtherNeural=3d4e")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://westus2.api.cognitive.microsoft.com", cfg.Speech.Endpoint)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Poll.MaxWait)
	assert.Equal(t, 5, cfg.Poll.MaxErrors)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.CORSAllowedOrigins)
	assert.True(t, cfg.Avatar.Customized)
	assert.Equal(t, map[string]string{"MyVoiceNeural": "0a1b2c-deploy", "OtherNeural": "3d4e"}, cfg.Avatar.CustomVoices)
}

func TestLoadInvalidEnvValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUBSCRIPTION_KEY", "test-key")
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("MAX_POLL_ERRORS", "many")
	t.Setenv("AVATAR_CUSTOM_VOICES", "MyVoiceNeural")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
	assert.Contains(t, err.Error(), "MAX_POLL_ERRORS")
	assert.Contains(t, err.Error(), "AVATAR_CUSTOM_VOICES")
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
speech:
  endpoint: https://eastus.api.cognitive.microsoft.com
poll:
  interval: 1s
  max_wait: 2m
storage:
  provider: localfs
  local_root: /var/lib/avatar
avatar:
  character: Harry
  style: business
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SUBSCRIPTION_KEY", "test-key")
	t.Setenv("AVATAR_STYLE", "youthful")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://eastus.api.cognitive.microsoft.com", cfg.Speech.Endpoint)
	assert.Equal(t, time.Second, cfg.Poll.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Poll.MaxWait)
	assert.Equal(t, StorageLocalFS, cfg.Storage.Provider)
	assert.Equal(t, "/var/lib/avatar", cfg.Storage.LocalRoot)
	assert.Equal(t, "Harry", cfg.Avatar.Character)
	assert.Equal(t, "youthful", cfg.Avatar.Style)
	// Unset keys keep their defaults.
	assert.Equal(t, "en-US-JennyMultilingualNeural", cfg.Avatar.Voice)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Auth.SubscriptionKey = "test-key"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"relative endpoint", func(c *Config) { c.Speech.Endpoint = "speech.local" }, "SPEECH_ENDPOINT"},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "magic" }, "unknown AUTH_MODE"},
		{"client credentials without secret", func(c *Config) {
			c.Auth.Mode = AuthModeClientCredentials
			c.Auth.TenantID = "t"
			c.Auth.ClientID = "c"
		}, "AZURE_CLIENT_SECRET"},
		{"zero poll interval", func(c *Config) { c.Poll.Interval = 0 }, "POLL_INTERVAL"},
		{"max wait below interval", func(c *Config) { c.Poll.MaxWait = time.Second }, "MAX_WAIT"},
		{"no poll errors allowed", func(c *Config) { c.Poll.MaxErrors = 0 }, "MAX_POLL_ERRORS"},
		{"gdrive without token", func(c *Config) { c.Storage.Provider = StorageGDrive }, "GDRIVE_REFRESH_TOKEN"},
		{"unknown storage", func(c *Config) { c.Storage.Provider = "s3" }, "unknown STORAGE_PROVIDER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
