// Package apiclient is the recorder agent's view of the API server. It
// implements the credential source and transcript saver interfaces the
// streaming session consumes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/verbatimhq/verbatim/internal/store"
)

var ErrUnauthorized = errors.New("apiclient: unauthorized")

// Client talks to the API server over HTTP with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login exchanges credentials for a bearer token and returns a client
// authenticated with it.
func Login(ctx context.Context, baseURL, email, password string) (*Client, error) {
	c := New(baseURL, "")

	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("apiclient: login response missing token")
	}
	c.token = resp.Token
	return c, nil
}

// Token returns the bearer token the client authenticates with.
func (c *Client) Token() string { return c.token }

// Credential fetches a short-lived streaming key from the server.
func (c *Client) Credential(ctx context.Context) (string, error) {
	var resp struct {
		Key string `json:"key"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/credential", nil, &resp); err != nil {
		return "", err
	}
	if resp.Key == "" {
		return "", errors.New("apiclient: credential response missing key")
	}
	return resp.Key, nil
}

// SaveTranscript persists a finished transcript under the caller's account.
func (c *Client) SaveTranscript(ctx context.Context, text string) error {
	body := map[string]string{
		"text":         text,
		"source_label": "Live Recording",
	}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/transcripts", body, nil)
}

// ListTranscripts returns the caller's saved transcripts, newest first.
func (c *Client) ListTranscripts(ctx context.Context) ([]store.Transcript, error) {
	var resp struct {
		Transcripts []store.Transcript `json:"transcripts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/transcripts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transcripts, nil
}

// DeleteTranscript removes one of the caller's transcripts.
func (c *Client) DeleteTranscript(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/transcripts/"+id, nil, nil)
}

// Transcribe uploads an audio file for one-shot transcription. The server
// persists the transcript under the caller's account.
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte, mimeType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, filename))
	if mimeType != "" {
		hdr.Set("Content-Type", mimeType)
	}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("create upload part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write upload part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finish upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/transcribe", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcribe: status %d: %s", resp.StatusCode, string(data))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Text, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
