package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultUploadLimit     = 48 // MiB
	DefaultLockTTLSeconds  = 60
	DefaultTokenTTLHours   = 24
	DefaultSessionTTLHours = 48
	DefaultRedisAddr       = "127.0.0.1:6379"
	DefaultJanitorSchedule = "@hourly"
	// Retention must cover the session TTL, or a sweep could reclaim a blob
	// that a still-live idle session references.
	DefaultRetentionHours = 48
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Telegram TelegramConfig `toml:"telegram"`
	Redis    RedisConfig    `toml:"redis"`
	Storage  StorageConfig  `toml:"storage"`
	Payments PaymentsConfig `toml:"payments"`
	Janitor  JanitorConfig  `toml:"janitor"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// BaseURL is the public origin used to build download and thumbnail
	// links, e.g. "https://bot.example.org".
	BaseURL string `toml:"base_url" validate:"omitempty,url"`
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token" validate:"required"`
	// ChannelUsername is the gating channel; users must be members to use
	// the bot. Stored without the leading @.
	ChannelUsername string `toml:"channel_username"`
	// WebhookSecret, when set, must match the secret token Telegram sends
	// with every webhook call.
	WebhookSecret string `toml:"webhook_secret"`
	// OwnerIDs is a comma-separated list of privileged user ids that bypass
	// the channel-membership gate.
	OwnerIDs string `toml:"owner_ids"`
	// UploadLimit is the bot-initiated upload ceiling. Values up to 1024 are
	// read as MiB, larger values as bytes.
	UploadLimit     int64 `toml:"upload_limit" validate:"omitempty,gt=0"`
	LockTTLSeconds  int   `toml:"lock_ttl_seconds" validate:"omitempty,gt=0"`
	TokenTTLHours   int   `toml:"token_ttl_hours" validate:"omitempty,gt=0"`
	SessionTTLHours int   `toml:"session_ttl_hours" validate:"omitempty,gt=0"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// StorageConfig points at an S3-compatible bucket (R2 included) used to park
// packages that exceed the upload limit and to host thumbnails. All fields
// empty means blob offload is disabled and the bot degrades to
// reference-based forwarding for oversized files.
type StorageConfig struct {
	Endpoint        string `toml:"endpoint" validate:"omitempty,url"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

type PaymentsConfig struct {
	APIURL string `toml:"api_url" validate:"omitempty,url"`
	APIKey string `toml:"api_key"`
}

// JanitorConfig tunes the blob retention sweep. Keep retention_hours at or
// above session_ttl_hours so parked blobs outlive the sessions pointing at
// them.
type JanitorConfig struct {
	Schedule       string `toml:"schedule"`
	RetentionHours int    `toml:"retention_hours" validate:"omitempty,gt=0"`
}

func (c StorageConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

func (c TelegramConfig) Channel() string {
	return strings.TrimPrefix(strings.TrimSpace(c.ChannelUsername), "@")
}

// UploadLimitBytes resolves the small-integers-mean-MiB convention.
func (c TelegramConfig) UploadLimitBytes() int64 {
	limit := c.UploadLimit
	if limit <= 0 {
		limit = DefaultUploadLimit
	}
	if limit <= 1024 {
		return limit * 1024 * 1024
	}
	return limit
}

func (c TelegramConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c TelegramConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func (c TelegramConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c JanitorConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Telegram: TelegramConfig{
			UploadLimit:     DefaultUploadLimit,
			LockTTLSeconds:  DefaultLockTTLSeconds,
			TokenTTLHours:   DefaultTokenTTLHours,
			SessionTTLHours: DefaultSessionTTLHours,
		},
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		Janitor: JanitorConfig{
			Schedule:       DefaultJanitorSchedule,
			RetentionHours: DefaultRetentionHours,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	return validator.New().Struct(c)
}
