// Package server exposes the HTTP API: account registration and login,
// ephemeral streaming credentials, transcript CRUD, and one-shot file
// transcription.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verbatimhq/verbatim/internal/auth"
	"github.com/verbatimhq/verbatim/internal/broker"
	"github.com/verbatimhq/verbatim/internal/store"
	"github.com/verbatimhq/verbatim/internal/transcribe"
)

// Config carries the server's tunables.
type Config struct {
	Addr              string
	RequestsPerMinute int   // per client IP; <= 0 disables limiting
	MaxUploadBytes    int64 // transcribe upload cap; <= 0 means 25 MiB
}

// Server wires the API's dependencies behind a gin engine.
type Server struct {
	cfg    Config
	engine *gin.Engine

	users       *auth.Registry
	tokens      *auth.Tokens
	store       store.Store
	credentials broker.Source
	transcriber transcribe.Adapter

	http *http.Server
}

// New assembles the engine and routes. credentials and transcriber may be
// nil; their endpoints then report 503.
func New(cfg Config, users *auth.Registry, tokens *auth.Tokens, st store.Store, credentials broker.Source, transcriber transcribe.Adapter) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{
		cfg:         cfg,
		engine:      engine,
		users:       users,
		tokens:      tokens,
		store:       st,
		credentials: credentials,
		transcriber: transcriber,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "verbatim"})
	})

	api := s.engine.Group("/api/v1")
	api.Use(rateLimit(s.cfg.RequestsPerMinute))

	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)

	authed := api.Group("")
	authed.Use(requireAuth(s.tokens))

	authed.GET("/credential", s.handleCredential)
	authed.POST("/transcripts", s.handleSaveTranscript)
	authed.GET("/transcripts", s.handleListTranscripts)
	authed.DELETE("/transcripts/:id", s.handleDeleteTranscript)
	authed.POST("/transcribe", s.handleTranscribe)
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", s.cfg.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
