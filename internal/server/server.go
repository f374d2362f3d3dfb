package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"keyword-rag/internal/config"
	"keyword-rag/internal/helper"
	"keyword-rag/internal/models"
	"keyword-rag/internal/parser"
	"keyword-rag/internal/rag"
)

type Server struct {
	rag         *rag.RAG
	maxUpload   int64
	defaultKey  string
	defaultDocs []models.Chunk

	mu sync.Mutex
	// idle sessions expire after the configured TTL; the least recently used
	// one is dropped beyond MaxSessions
	sessions *expirable.LRU[string, *rag.Session]
}

func New(r *rag.RAG, cfg *config.ServerConfig) *Server {
	return &Server{
		rag:       r,
		maxUpload: int64(cfg.MaxUploadMB) << 20,
		sessions:  expirable.NewLRU[string, *rag.Session](cfg.MaxSessions, nil, cfg.SessionTTL),
	}
}

// SetDefaultDocument binds sessions created without a document_id to doc.
func (s *Server) SetDefaultDocument(key string, chunks []models.Chunk) {
	s.defaultKey = key
	s.defaultDocs = chunks
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.health)
	r.POST("/documents", s.uploadDocument)
	r.POST("/chat", s.chat)
	r.GET("/sessions/:id/history", s.history)
	r.DELETE("/sessions/:id/history", s.clearHistory)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Msg("Handled request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) uploadDocument(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if header.Size > s.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}

	doc, err := parser.LoadBytes(header.Filename, data)
	if err != nil {
		log.Warn().Err(err).Str("filename", header.Filename).Msg("Error parsing upload")
		status := http.StatusUnprocessableEntity
		if errors.Is(err, models.ErrUnsupportedFormat) {
			status = http.StatusUnsupportedMediaType
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	chunks := s.rag.IndexUpload(c.Request.Context(), doc)
	c.JSON(http.StatusOK, gin.H{
		"document_id": doc.Key,
		"source":      doc.Source,
		"chunks":      len(chunks),
	})
}

type chatRequest struct {
	SessionID  string `json:"session_id"`
	DocumentID string `json:"document_id"`
	Query      string `json:"query"`
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	err := c.ShouldBindJSON(&req)
	req.Query = strings.TrimSpace(req.Query)
	if err != nil || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	session, err := s.session(c.Request.Context(), req.SessionID, req.DocumentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	resp, err := session.Ask(c.Request.Context(), req.Query)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"session_id": session.ID, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"answer":     resp.Content,
		"context":    resp.Source,
	})
}

var (
	errUnknownSession  = errors.New("unknown session")
	errUnknownDocument = errors.New("unknown document")
)

// session returns an existing session or creates one bound to documentID (or
// the default document). An absent document means a session without context.
func (s *Server) session(ctx context.Context, sessionID, documentID string) (*rag.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != "" {
		if sess, ok := s.touch(sessionID); ok {
			return sess, nil
		}
		return nil, errUnknownSession
	}

	key, chunks := s.defaultKey, s.defaultDocs
	if documentID != "" {
		cached, ok := s.rag.Chunks(ctx, documentID)
		if !ok {
			return nil, errUnknownDocument
		}
		key, chunks = documentID, cached
	}

	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	sess := s.rag.NewSession(id, key, chunks)
	s.sessions.Add(id, sess)
	log.Info().Str("session", id).Str("document", key).Int("chunks", len(chunks)).Msg("Created session")
	return sess, nil
}

func (s *Server) lookup(id string) (*rag.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touch(id)
}

// touch returns the session and restarts its TTL. Callers hold s.mu.
func (s *Server) touch(id string) (*rag.Session, bool) {
	sess, ok := s.sessions.Get(id)
	if ok {
		s.sessions.Add(id, sess)
	}
	return sess, ok
}

func (s *Server) history(c *gin.Context) {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errUnknownSession.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "messages": sess.History()})
}

func (s *Server) clearHistory(c *gin.Context) {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errUnknownSession.Error()})
		return
	}
	sess.Reset()
	c.Status(http.StatusNoContent)
}
