package config

import (
	"os"
	"time"

	"github.com/verbatimhq/verbatim/internal/recording"
)

type Config struct {
	Server        ServerConfig              `toml:"server"`
	API           APIConfig                 `toml:"api"`
	Recording     RecordingConfig           `toml:"recording"`
	Streaming     StreamingConfig           `toml:"streaming"`
	Notifications NotificationsConfig       `toml:"notifications"`
	Providers     map[string]ProviderConfig `toml:"providers"`
}

// ServerConfig drives the API server process.
type ServerConfig struct {
	Addr              string `toml:"addr"`
	DataDir           string `toml:"data_dir"`
	JWTSecret         string `toml:"jwt_secret"`
	RateLimitPerMin   int    `toml:"rate_limit_per_minute"`
	MaxUploadMegabyte int64  `toml:"max_upload_mb"`
}

// APIConfig tells the recorder agent where its API server lives.
type APIConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

type RecordingConfig struct {
	SampleRate        int           `toml:"sample_rate"`
	Channels          int           `toml:"channels"`
	BufferSize        int           `toml:"buffer_size"`
	Device            string        `toml:"device"`
	ChannelBufferSize int           `toml:"channel_buffer_size"`
	Timeout           time.Duration `toml:"timeout"`
	Encodings         []string      `toml:"encodings"` // preference order, MIME types
}

type StreamingConfig struct {
	Provider       string        `toml:"provider"`
	Model          string        `toml:"model"`
	Language       string        `toml:"language"`
	ConnectTimeout time.Duration `toml:"connect_timeout"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

// ProviderConfig holds per-provider credentials.
type ProviderConfig struct {
	APIKey    string `toml:"api_key"`
	ProjectID string `toml:"project_id"`
}

func (c *Config) ToRecordingConfig() recording.Config {
	encodings := make([]recording.Encoding, 0, len(c.Recording.Encodings))
	for _, e := range c.Recording.Encodings {
		encodings = append(encodings, recording.Encoding(e))
	}
	return recording.Config{
		SampleRate:        c.Recording.SampleRate,
		Channels:          c.Recording.Channels,
		BufferSize:        c.Recording.BufferSize,
		Device:            c.Recording.Device,
		ChannelBufferSize: c.Recording.ChannelBufferSize,
		Encodings:         encodings,
	}
}

// ResolveAPIKey returns a provider's API key from config, falling back to
// the conventional environment variable.
func (c *Config) ResolveAPIKey(provider string) string {
	if p, ok := c.Providers[provider]; ok && p.APIKey != "" {
		return p.APIKey
	}
	switch provider {
	case "deepgram":
		return os.Getenv("DEEPGRAM_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// ResolveProjectID returns the Deepgram project used for key issuance.
func (c *Config) ResolveProjectID(provider string) string {
	if p, ok := c.Providers[provider]; ok && p.ProjectID != "" {
		return p.ProjectID
	}
	if provider == "deepgram" {
		return os.Getenv("DEEPGRAM_PROJECT_ID")
	}
	return ""
}

// ResolveJWTSecret returns the token signing secret from config or the
// environment.
func (c *Config) ResolveJWTSecret() string {
	if c.Server.JWTSecret != "" {
		return c.Server.JWTSecret
	}
	return os.Getenv("VERBATIM_JWT_SECRET")
}
