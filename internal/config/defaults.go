package config

import "time"

// DefaultConfig returns the initial configuration used for onboarding.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			DataDir:           "",
			RateLimitPerMin:   30,
			MaxUploadMegabyte: 25,
		},
		API: APIConfig{
			BaseURL: "http://localhost:8080",
		},
		Recording: RecordingConfig{
			SampleRate:        16000,
			Channels:          1,
			BufferSize:        8192,
			Device:            "",
			ChannelBufferSize: 30,
			Timeout:           5 * time.Minute,
			Encodings:         nil, // nil means the built-in preference order
		},
		Streaming: StreamingConfig{
			Provider:       "deepgram",
			Model:          "nova-2",
			Language:       "",
			ConnectTimeout: 10 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: false,
			Type:    "none",
		},
		Providers: make(map[string]ProviderConfig),
	}
}
