package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sashabaranov/go-openai"
)

// WhisperAdapter sends audio to OpenAI's transcription API.
type WhisperAdapter struct {
	client *openai.Client
	config Config
}

func NewWhisperAdapter(cfg Config) *WhisperAdapter {
	return &WhisperAdapter{
		client: openai.NewClient(cfg.APIKey),
		config: cfg,
	}
}

// extensionFor maps an upload's MIME type to the filename extension the
// API uses to sniff the container format.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/webm", "audio/webm;codecs=opus":
		return "webm"
	case "audio/ogg", "audio/ogg;codecs=opus":
		return "ogg"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	default:
		return "wav"
	}
}

func (a *WhisperAdapter) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	req := openai.AudioRequest{
		Model:    a.config.Model,
		Reader:   bytes.NewReader(audio),
		FilePath: "audio." + extensionFor(mimeType),
		Language: a.config.Language,
	}

	start := time.Now()
	resp, err := a.client.CreateTranscription(ctx, req)
	duration := time.Since(start)

	if err != nil {
		log.Printf("whisper-adapter: API call failed after %v: %v", duration, err)
		return "", fmt.Errorf("openai transcription: %w", err)
	}

	log.Printf("whisper-adapter: transcribed %d bytes in %v", len(audio), duration)
	return resp.Text, nil
}
