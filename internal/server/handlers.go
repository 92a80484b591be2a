package server

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/verbatimhq/verbatim/internal/auth"
	"github.com/verbatimhq/verbatim/internal/broker"
	"github.com/verbatimhq/verbatim/internal/store"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	Token string `json:"token"`
	User  gin.H  `json:"user"`
}

func sessionFor(token string, user *auth.User) sessionResponse {
	return sessionResponse{
		Token: token,
		User:  gin.H{"id": user.ID, "name": user.Name, "email": user.Email},
	}
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	user, err := s.users.Register(req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		default:
			log.Printf("server: register failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		log.Printf("server: issue token failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, sessionFor(token, user))
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	user, err := s.users.Authenticate(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		log.Printf("server: issue token failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, sessionFor(token, user))
}

// handleCredential issues a short-lived streaming key. Misconfiguration is
// our fault (500); a rejected or malformed issuer response is the
// upstream's (502).
func (s *Server) handleCredential(c *gin.Context) {
	if s.credentials == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "streaming is not configured"})
		return
	}

	key, err := s.credentials.Credential(c.Request.Context())
	if err != nil {
		var upstream *broker.UpstreamError
		var protocol *broker.ProtocolError
		switch {
		case errors.Is(err, broker.ErrConfig):
			log.Printf("server: credential misconfigured: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "credential service misconfigured"})
		case errors.As(err, &upstream), errors.As(err, &protocol):
			log.Printf("server: credential upstream failure: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "credential provider unavailable"})
		default:
			log.Printf("server: credential failure: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "credential provider unavailable"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

type saveTranscriptRequest struct {
	SourceLabel string `json:"source_label"`
	MimeType    string `json:"mime_type"`
	Text        string `json:"text" binding:"required"`
}

func (s *Server) handleSaveTranscript(c *gin.Context) {
	var req saveTranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	rec := &store.Transcript{
		SourceLabel: req.SourceLabel,
		MimeType:    req.MimeType,
		Text:        req.Text,
		OwnerID:     currentUserID(c),
	}
	if rec.SourceLabel == "" {
		rec.SourceLabel = "Live Recording"
	}

	if err := s.store.Save(c.Request.Context(), rec); err != nil {
		log.Printf("server: save transcript failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save transcript"})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleListTranscripts(c *gin.Context) {
	recs, err := s.store.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		log.Printf("server: list transcripts failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list transcripts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcripts": recs})
}

func (s *Server) handleDeleteTranscript(c *gin.Context) {
	err := s.store.Delete(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transcript not found"})
			return
		}
		log.Printf("server: delete transcript failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete transcript"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleTranscribe accepts a multipart upload under the "audio" field and
// returns its transcript without persisting anything.
func (s *Server) handleTranscribe(c *gin.Context) {
	if s.transcriber == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transcription is not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read audio file"})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	text, err := s.transcriber.Transcribe(c.Request.Context(), audio, mimeType)
	if err != nil {
		log.Printf("server: transcription failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "transcription failed"})
		return
	}

	resp := gin.H{"text": text}
	if strings.TrimSpace(text) != "" {
		rec := &store.Transcript{
			SourceLabel: header.Filename,
			MimeType:    mimeType,
			Text:        text,
			OwnerID:     currentUserID(c),
		}
		if err := s.store.Save(c.Request.Context(), rec); err != nil {
			// transcription succeeded; report it even if persistence failed
			log.Printf("server: save uploaded transcript failed: %v", err)
		} else {
			resp["id"] = rec.ID
		}
	}
	c.JSON(http.StatusOK, resp)
}
