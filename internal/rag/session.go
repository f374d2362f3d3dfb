package rag

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"keyword-rag/internal/models"
)

// Session is one conversation over one document. Turns are serialized.
type Session struct {
	ID string

	mu      sync.Mutex
	rag     *RAG
	docKey  string
	chunks  []models.Chunk
	history []models.ChatMessage
}

func (r *RAG) NewSession(id, docKey string, chunks []models.Chunk) *Session {
	return &Session{ID: id, rag: r, docKey: docKey, chunks: chunks}
}

func (s *Session) DocumentKey() string {
	return s.docKey
}

// Ask records the user turn, then answers it. The user turn stays in history when
// the completion fails so the question can be resubmitted.
func (s *Session) Ask(ctx context.Context, query string, opts ...llms.CallOption) (*models.PromptResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.history
	s.history = append(s.history, models.ChatMessage{Role: models.RoleUser, Content: query})

	resp, err := s.rag.answer(ctx, s.chunks, prior, query, opts...)
	if err != nil {
		log.Error().Err(err).Str("session", s.ID).Msg("Error answering query")
		return nil, err
	}

	s.history = append(s.history, models.ChatMessage{Role: models.RoleAssistant, Content: resp.Content})
	return resp, nil
}

func (s *Session) History() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}
