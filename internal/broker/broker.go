package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrConfig indicates the service secret or project ID is missing. This is a
// deployment problem, not a transient failure: callers must not retry.
var ErrConfig = errors.New("broker: missing provider credentials")

// UpstreamError is returned when the provider rejects the key request or
// responds with a body we cannot parse.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("broker: provider returned status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("broker: provider returned status %d", e.Status)
}

// ProtocolError is returned when the provider response is well-formed JSON
// but omits the key field. That's a contract violation on their side.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "broker: " + e.Msg
}

// Source yields a fresh ephemeral credential for one streaming session.
// Credentials are single-use and expire within tens of seconds, so callers
// must consume them promptly and request a new one per session.
type Source interface {
	Credential(ctx context.Context) (string, error)
}

// Issuer mints short-lived, write-only keys from the provider's project keys
// API using the long-lived service secret. It runs server-side only; clients
// obtain keys through the API server instead.
type Issuer struct {
	BaseURL string
	// KeysPath is the projects collection the key request is issued under.
	KeysPath  string
	APIKey    string
	ProjectID string
	TTL       time.Duration
	Client    *http.Client
}

func NewIssuer(baseURL, apiKey, projectID string) *Issuer {
	return &Issuer{
		BaseURL:   baseURL,
		KeysPath:  "/v1/projects",
		APIKey:    apiKey,
		ProjectID: projectID,
		TTL:       60 * time.Second,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type keyRequest struct {
	Comment   string   `json:"comment"`
	Scopes    []string `json:"scopes"`
	TTLInSecs int      `json:"time_to_live_in_seconds"`
}

type keyResponse struct {
	APIKey string `json:"api_key"`
	Key    string `json:"key"`
}

// Issue requests a scope-limited ephemeral key. No network call is made when
// the service secret or project ID is absent.
func (i *Issuer) Issue(ctx context.Context) (string, error) {
	if i.APIKey == "" || i.ProjectID == "" {
		return "", fmt.Errorf("%w: set DEEPGRAM_API_KEY and DEEPGRAM_PROJECT_ID", ErrConfig)
	}

	body, err := json.Marshal(keyRequest{
		Comment:   "ephemeral key for live transcription",
		Scopes:    []string{"usage:write"},
		TTLInSecs: int(i.TTL.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("marshal key request: %w", err)
	}

	url := fmt.Sprintf("%s%s/%s/keys", i.BaseURL, i.KeysPath, i.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create key request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+i.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request ephemeral key: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read key response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UpstreamError{Status: resp.StatusCode, Body: upstreamMessage(respBody)}
	}

	var kr keyResponse
	if err := json.Unmarshal(respBody, &kr); err != nil {
		return "", &UpstreamError{Status: resp.StatusCode, Body: "unparsable response body"}
	}

	// the keys API has returned both field names across versions
	key := kr.APIKey
	if key == "" {
		key = kr.Key
	}
	if key == "" {
		return "", &ProtocolError{Msg: "response missing key field"}
	}

	return key, nil
}

// Credential makes Issuer usable directly as a Source, for deployments where
// the agent holds the service secret itself.
func (i *Issuer) Credential(ctx context.Context) (string, error) {
	return i.Issue(ctx)
}

func upstreamMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		ErrMsg  string `json:"err_msg"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.ErrMsg != "" {
			return e.ErrMsg
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
