package config

import (
	"fmt"

	"github.com/verbatimhq/verbatim/internal/provider"
	"github.com/verbatimhq/verbatim/internal/recording"
)

func (c *Config) Validate() error {
	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid recording.sample_rate: %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels <= 0 {
		return fmt.Errorf("invalid recording.channels: %d", c.Recording.Channels)
	}
	if c.Recording.BufferSize <= 0 {
		return fmt.Errorf("invalid recording.buffer_size: %d", c.Recording.BufferSize)
	}
	if c.Recording.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid recording.channel_buffer_size: %d", c.Recording.ChannelBufferSize)
	}
	if c.Recording.Timeout <= 0 {
		return fmt.Errorf("invalid recording.timeout: %v", c.Recording.Timeout)
	}
	for _, e := range c.Recording.Encodings {
		if !recording.Encoding(e).Valid() {
			return fmt.Errorf("invalid recording.encodings entry: %q", e)
		}
	}

	if c.Streaming.Provider == "" {
		return fmt.Errorf("invalid streaming.provider: empty")
	}
	p, ok := provider.Get(c.Streaming.Provider)
	if !ok {
		return fmt.Errorf("unsupported streaming.provider: %s", c.Streaming.Provider)
	}
	if !p.SupportsStreaming {
		return fmt.Errorf("streaming.provider %s has no real-time endpoint", c.Streaming.Provider)
	}
	if c.Streaming.ConnectTimeout <= 0 {
		return fmt.Errorf("invalid streaming.connect_timeout: %v", c.Streaming.ConnectTimeout)
	}

	if c.Server.RateLimitPerMin < 0 {
		return fmt.Errorf("invalid server.rate_limit_per_minute: %d", c.Server.RateLimitPerMin)
	}
	if c.Server.MaxUploadMegabyte < 0 {
		return fmt.Errorf("invalid server.max_upload_mb: %d", c.Server.MaxUploadMegabyte)
	}

	validTypes := map[string]bool{"desktop": true, "log": true, "none": true}
	if !validTypes[c.Notifications.Type] {
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	return nil
}
