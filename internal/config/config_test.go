package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadFile_AppliesDefaultsForAbsentSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[streaming]
provider = "deepgram"
model = "nova-3"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Streaming.Model != "nova-3" {
		t.Errorf("expected model override, got %q", cfg.Streaming.Model)
	}
	if cfg.Recording.SampleRate != 16000 {
		t.Errorf("expected default sample rate, got %d", cfg.Recording.SampleRate)
	}
	if cfg.Server.RateLimitPerMin != 30 {
		t.Errorf("expected default rate limit, got %d", cfg.Server.RateLimitPerMin)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig()
	cfg.Streaming.Language = "en"
	cfg.Providers["deepgram"] = ProviderConfig{APIKey: "dg-key", ProjectID: "proj-1"}
	if err := SaveFile(cfg, path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.Streaming.Language != "en" {
		t.Errorf("expected language en, got %q", got.Streaming.Language)
	}
	if got.Providers["deepgram"].APIKey != "dg-key" {
		t.Errorf("expected provider key preserved, got %q", got.Providers["deepgram"].APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"zero sample rate", func(c *Config) { c.Recording.SampleRate = 0 }, true},
		{"zero channels", func(c *Config) { c.Recording.Channels = 0 }, true},
		{"bad encoding", func(c *Config) { c.Recording.Encodings = []string{"audio/flac"} }, true},
		{"good encodings", func(c *Config) { c.Recording.Encodings = []string{"audio/webm;codecs=opus", "audio/wav"} }, false},
		{"empty provider", func(c *Config) { c.Streaming.Provider = "" }, true},
		{"unknown provider", func(c *Config) { c.Streaming.Provider = "whisperx" }, true},
		{"batch-only provider", func(c *Config) { c.Streaming.Provider = "openai" }, true},
		{"zero connect timeout", func(c *Config) { c.Streaming.ConnectTimeout = 0 }, true},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitPerMin = -1 }, true},
		{"bad notifications type", func(c *Config) { c.Notifications.Type = "popup" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestResolveAPIKeyEnvFallback(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("DEEPGRAM_API_KEY", "env-key")
	if got := cfg.ResolveAPIKey("deepgram"); got != "env-key" {
		t.Errorf("expected env fallback, got %q", got)
	}

	cfg.Providers["deepgram"] = ProviderConfig{APIKey: "file-key"}
	if got := cfg.ResolveAPIKey("deepgram"); got != "file-key" {
		t.Errorf("expected config to win over env, got %q", got)
	}
}

func TestToRecordingConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Recording.Encodings = []string{"audio/wav"}
	cfg.Recording.Timeout = 2 * time.Minute

	rc := cfg.ToRecordingConfig()
	if rc.SampleRate != 16000 || rc.Channels != 1 {
		t.Errorf("unexpected recording config: %+v", rc)
	}
	if len(rc.Encodings) != 1 || string(rc.Encodings[0]) != "audio/wav" {
		t.Errorf("expected encoding carried over, got %v", rc.Encodings)
	}
}
