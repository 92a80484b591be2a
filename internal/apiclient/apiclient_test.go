package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbatimhq/verbatim/internal/auth"
	"github.com/verbatimhq/verbatim/internal/broker"
	"github.com/verbatimhq/verbatim/internal/relay"
	"github.com/verbatimhq/verbatim/internal/server"
	"github.com/verbatimhq/verbatim/internal/store"
)

// apiServer spins up a real API server backed by temp files.
func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	users, err := auth.OpenRegistry(filepath.Join(dir, "users.json"))
	require.NoError(t, err)
	tokens, err := auth.NewTokens("test-secret", 0)
	require.NoError(t, err)
	st, err := store.OpenFileStore(filepath.Join(dir, "transcripts.json"))
	require.NoError(t, err)

	_, err = users.Register("Alice", "alice@example.com", "s3cret")
	require.NoError(t, err)

	srv := server.New(server.Config{}, users, tokens, st, staticSource("socket-key"), staticAdapter("from upload"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type staticSource string

func (s staticSource) Credential(ctx context.Context) (string, error) {
	return string(s), nil
}

type staticAdapter string

func (a staticAdapter) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return string(a), nil
}

func TestLoginAndRoundTrip(t *testing.T) {
	ts := apiServer(t)
	ctx := context.Background()

	c, err := Login(ctx, ts.URL, "alice@example.com", "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, c.Token())

	key, err := c.Credential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "socket-key", key)

	require.NoError(t, c.SaveTranscript(ctx, "hello world"))

	recs, err := c.ListTranscripts(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "hello world", recs[0].Text)
	assert.Equal(t, "Live Recording", recs[0].SourceLabel)

	require.NoError(t, c.DeleteTranscript(ctx, recs[0].ID))
	recs, err = c.ListTranscripts(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestTranscribeUpload(t *testing.T) {
	ts := apiServer(t)
	ctx := context.Background()

	c, err := Login(ctx, ts.URL, "alice@example.com", "s3cret")
	require.NoError(t, err)

	text, err := c.Transcribe(ctx, "clip.webm", []byte("audio bytes"), "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "from upload", text)

	// the server files the upload transcript under the account
	recs, err := c.ListTranscripts(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "clip.webm", recs[0].SourceLabel)
}

func TestLoginRejected(t *testing.T) {
	ts := apiServer(t)

	_, err := Login(context.Background(), ts.URL, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUnauthorizedToken(t *testing.T) {
	ts := apiServer(t)

	c := New(ts.URL, "garbage")
	_, err := c.Credential(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestServerErrorsSurfaceBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "credential provider unavailable"})
	}))
	defer ts.Close()

	c := New(ts.URL, "token")
	_, err := c.Credential(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential provider unavailable")
}

// Compile-time checks that the client satisfies the session's dependency
// interfaces.
var (
	_ broker.Source = (*Client)(nil)
	_ relay.Saver   = (*Client)(nil)
)
