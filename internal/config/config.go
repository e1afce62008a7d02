// Package config loads the avatar service configuration.
//
// Values are resolved in order: built-in defaults, an optional YAML file named
// by CONFIG_FILE, then environment variables. The result is validated before use.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth modes accepted by AUTH_MODE.
const (
	AuthModeKey               = "key"
	AuthModeClientCredentials = "client_credentials"
	AuthModeDefaultCredential = "default_credential"
)

// Storage providers accepted by STORAGE_PROVIDER.
const (
	StorageNone    = "none"
	StorageLocalFS = "localfs"
	StorageGDrive  = "gdrive"
)

// revokedKeyDigests holds SHA-256 digests of subscription keys that were
// published in sample code and must never be accepted.
var revokedKeyDigests = map[string]struct{}{
	"4fff3cfa23425b0774c59ad721bf618040a116a4ca8fe7e1f433758d01e4f2c8": {},
}

// ErrRevokedKey is returned when SUBSCRIPTION_KEY is a known leaked key.
var ErrRevokedKey = errors.New("subscription key has been revoked")

type Config struct {
	Speech  SpeechConfig  `yaml:"speech"`
	Auth    AuthConfig    `yaml:"auth"`
	HTTP    HTTPConfig    `yaml:"http"`
	Poll    PollConfig    `yaml:"poll"`
	Redis   RedisConfig   `yaml:"redis"`
	Storage StorageConfig `yaml:"storage"`
	Avatar  AvatarConfig  `yaml:"avatar"`
	Log     LogConfig     `yaml:"log"`
}

type SpeechConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIVersion string `yaml:"api_version"`
	// RequestTimeout bounds a single call to the speech service.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type AuthConfig struct {
	Mode            string `yaml:"mode"`
	Passwordless    bool   `yaml:"passwordless"`
	SubscriptionKey string `yaml:"-"`
	TenantID        string `yaml:"tenant_id"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"-"`
	Scope           string `yaml:"scope"`
}

type HTTPConfig struct {
	Port               string        `yaml:"port"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

type PollConfig struct {
	Interval  time.Duration `yaml:"interval"`
	MaxWait   time.Duration `yaml:"max_wait"`
	MaxErrors int           `yaml:"max_errors"`
}

type RedisConfig struct {
	// Addr selects the Redis job store. Empty keeps jobs in memory.
	Addr   string        `yaml:"addr"`
	JobTTL time.Duration `yaml:"job_ttl"`
}

type StorageConfig struct {
	Provider  string       `yaml:"provider"`
	LocalRoot string       `yaml:"local_root"`
	GDrive    GDriveConfig `yaml:"gdrive"`
}

type GDriveConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"-"`
	RefreshToken string `yaml:"-"`
	FolderID     string `yaml:"folder_id"`
}

// AvatarConfig holds the defaults used when a request leaves a field empty.
type AvatarConfig struct {
	Voice           string `yaml:"voice"`
	Text            string `yaml:"text"`
	Character       string `yaml:"character"`
	Style           string `yaml:"style"`
	Customized      bool   `yaml:"customized"`
	VideoFormat     string `yaml:"video_format"`
	VideoCodec      string `yaml:"video_codec"`
	SubtitleType    string `yaml:"subtitle_type"`
	BackgroundColor string `yaml:"background_color"`
	// CustomVoices maps custom neural voice names to their deployment ids.
	CustomVoices map[string]string `yaml:"custom_voices"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Speech: SpeechConfig{
			Endpoint:       "https://southeastasia.api.cognitive.microsoft.com",
			APIVersion:     "2024-04-15-preview",
			RequestTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Mode:  AuthModeKey,
			Scope: "https://cognitiveservices.azure.com/.default",
		},
		HTTP: HTTPConfig{
			Port:               "5000",
			CORSAllowedOrigins: []string{"http://localhost:5000"},
			ShutdownTimeout:    30 * time.Second,
		},
		Poll: PollConfig{
			Interval:  5 * time.Second,
			MaxWait:   30 * time.Minute,
			MaxErrors: 3,
		},
		Redis: RedisConfig{
			JobTTL: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Provider:  StorageNone,
			LocalRoot: "./data",
		},
		Avatar: AvatarConfig{
			Voice:           "en-US-JennyMultilingualNeural",
			Text:            "Hi, I'm a virtual assistant created by Microsoft.",
			Character:       "Lisa",
			Style:           "casual-sitting",
			VideoFormat:     "mp4",
			VideoCodec:      "h264",
			SubtitleType:    "soft_embedded",
			BackgroundColor: "#FFFFFFFF",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the environment.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var o envOverlay

	o.str("SPEECH_ENDPOINT", &cfg.Speech.Endpoint)
	o.str("SPEECH_API_VERSION", &cfg.Speech.APIVersion)
	o.duration("SPEECH_REQUEST_TIMEOUT", &cfg.Speech.RequestTimeout)

	mode := ""
	o.str("AUTH_MODE", &mode)
	o.boolean("PASSWORDLESS_AUTHENTICATION", &cfg.Auth.Passwordless)
	switch {
	case mode != "":
		cfg.Auth.Mode = mode
	case cfg.Auth.Passwordless:
		cfg.Auth.Mode = AuthModeDefaultCredential
	}
	o.str("SUBSCRIPTION_KEY", &cfg.Auth.SubscriptionKey)
	o.str("AZURE_TENANT_ID", &cfg.Auth.TenantID)
	o.str("AZURE_CLIENT_ID", &cfg.Auth.ClientID)
	o.str("AZURE_CLIENT_SECRET", &cfg.Auth.ClientSecret)
	o.str("TOKEN_SCOPE", &cfg.Auth.Scope)

	o.str("HTTP_PORT", &cfg.HTTP.Port)
	o.csv("CORS_ALLOWED_ORIGINS", &cfg.HTTP.CORSAllowedOrigins)
	o.duration("SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)

	o.duration("POLL_INTERVAL", &cfg.Poll.Interval)
	o.duration("MAX_WAIT", &cfg.Poll.MaxWait)
	o.integer("MAX_POLL_ERRORS", &cfg.Poll.MaxErrors)

	o.str("REDIS_ADDR", &cfg.Redis.Addr)
	o.duration("JOB_TTL", &cfg.Redis.JobTTL)

	o.str("STORAGE_PROVIDER", &cfg.Storage.Provider)
	o.str("STORAGE_LOCAL_ROOT", &cfg.Storage.LocalRoot)
	o.str("GDRIVE_CLIENT_ID", &cfg.Storage.GDrive.ClientID)
	o.str("GDRIVE_CLIENT_SECRET", &cfg.Storage.GDrive.ClientSecret)
	o.str("GDRIVE_REFRESH_TOKEN", &cfg.Storage.GDrive.RefreshToken)
	o.str("GDRIVE_FOLDER_ID", &cfg.Storage.GDrive.FolderID)

	o.str("AVATAR_VOICE", &cfg.Avatar.Voice)
	o.str("AVATAR_TEXT", &cfg.Avatar.Text)
	o.str("AVATAR_CHARACTER", &cfg.Avatar.Character)
	o.str("AVATAR_STYLE", &cfg.Avatar.Style)
	o.boolean("AVATAR_CUSTOMIZED", &cfg.Avatar.Customized)
	o.str("AVATAR_BACKGROUND_COLOR", &cfg.Avatar.BackgroundColor)
	o.keyValues("AVATAR_CUSTOM_VOICES", &cfg.Avatar.CustomVoices)

	o.str("LOG_LEVEL", &cfg.Log.Level)
	o.str("LOG_FORMAT", &cfg.Log.Format)
	o.boolean("LOG_SOURCE", &cfg.Log.AddSource)

	return errors.Join(o.errs...)
}

// Validate reports every problem found in cfg.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Speech.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("SPEECH_ENDPOINT must be an absolute URL, got %q", c.Speech.Endpoint))
	}
	if c.Speech.APIVersion == "" {
		errs = append(errs, errors.New("SPEECH_API_VERSION is required"))
	}

	switch c.Auth.Mode {
	case AuthModeKey:
		if c.Auth.SubscriptionKey == "" {
			errs = append(errs, errors.New("SUBSCRIPTION_KEY is required when AUTH_MODE=key"))
		} else if IsRevokedKey(c.Auth.SubscriptionKey) {
			errs = append(errs, ErrRevokedKey)
		}
	case AuthModeClientCredentials:
		if c.Auth.TenantID == "" || c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			errs = append(errs, errors.New("AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET are required when AUTH_MODE=client_credentials"))
		}
	case AuthModeDefaultCredential:
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.Auth.Mode))
	}
	if c.Auth.Mode != AuthModeKey && c.Auth.Scope == "" {
		errs = append(errs, errors.New("TOKEN_SCOPE is required for token authentication"))
	}

	if c.HTTP.Port == "" {
		errs = append(errs, errors.New("HTTP_PORT is required"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.Poll.MaxWait < c.Poll.Interval {
		errs = append(errs, errors.New("MAX_WAIT must not be shorter than POLL_INTERVAL"))
	}
	if c.Poll.MaxErrors < 1 {
		errs = append(errs, errors.New("MAX_POLL_ERRORS must be at least 1"))
	}
	if c.Redis.JobTTL <= 0 {
		errs = append(errs, errors.New("JOB_TTL must be positive"))
	}

	switch c.Storage.Provider {
	case StorageNone:
	case StorageLocalFS:
		if c.Storage.LocalRoot == "" {
			errs = append(errs, errors.New("STORAGE_LOCAL_ROOT is required when STORAGE_PROVIDER=localfs"))
		}
	case StorageGDrive:
		g := c.Storage.GDrive
		if g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" {
			errs = append(errs, errors.New("GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required when STORAGE_PROVIDER=gdrive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_PROVIDER %q", c.Storage.Provider))
	}

	return errors.Join(errs...)
}

// IsRevokedKey reports whether key is one of the published sample keys.
func IsRevokedKey(key string) bool {
	sum := sha256.Sum256([]byte(key))
	_, ok := revokedKeyDigests[hex.EncodeToString(sum[:])]
	return ok
}
