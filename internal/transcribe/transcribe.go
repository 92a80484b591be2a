// Package transcribe converts uploaded audio files to text in one shot,
// as opposed to the live socket path in internal/relay.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/verbatimhq/verbatim/internal/provider"
)

var ErrUnknownProvider = errors.New("transcribe: unknown provider")

// Adapter turns a complete audio file into its transcript.
type Adapter interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Config carries everything an adapter needs to talk to its backend.
type Config struct {
	APIKey   string
	Model    string
	Language string
}

// New builds the adapter for a named provider. An empty model falls back
// to the provider's default.
func New(name string, cfg Config) (Adapter, error) {
	p, ok := provider.Get(name)
	if !ok || !p.SupportsBatch {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	if cfg.Model == "" {
		cfg.Model = p.DefaultModel
	}

	switch name {
	case "deepgram":
		return NewDeepgramAdapter(p.Prerecorded, cfg), nil
	case "openai":
		return NewWhisperAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
