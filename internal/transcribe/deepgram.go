package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/verbatimhq/verbatim/internal/provider"
)

// DeepgramAdapter posts audio to Deepgram's pre-recorded API.
type DeepgramAdapter struct {
	endpoint *provider.EndpointConfig
	config   Config
	client   *http.Client
}

type deepgramResponse struct {
	Results *deepgramResults `json:"results,omitempty"`
	Error   *deepgramError   `json:"error,omitempty"`
}

type deepgramResults struct {
	Channels []deepgramChannel `json:"channels,omitempty"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives,omitempty"`
}

type deepgramAlternative struct {
	Transcript string `json:"transcript"`
}

type deepgramError struct {
	Message string `json:"message"`
}

func NewDeepgramAdapter(endpoint *provider.EndpointConfig, cfg Config) *DeepgramAdapter {
	return &DeepgramAdapter{
		endpoint: endpoint,
		config:   cfg,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *DeepgramAdapter) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	apiURL, err := a.buildURL()
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+a.config.APIKey)
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepgram api error (status %d): %s", resp.StatusCode, string(body))
	}

	var result deepgramResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("deepgram error: %s", result.Error.Message)
	}

	if result.Results == nil || len(result.Results.Channels) == 0 {
		return "", nil
	}
	if len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}

func (a *DeepgramAdapter) buildURL() (string, error) {
	u, err := url.Parse(a.endpoint.BaseURL + a.endpoint.Path)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	q.Set("model", a.config.Model)
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	if a.config.Language != "" {
		q.Set("language", a.config.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
