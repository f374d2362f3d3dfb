package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"keyword-rag/internal/cache"
	"keyword-rag/internal/config"
	"keyword-rag/internal/models"
	"keyword-rag/internal/parser"
	"keyword-rag/internal/retriever"
)

// Generator is the part of llms.Model used to answer a turn.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type RAG struct {
	cfg       *config.Config
	cache     *cache.ChunkCache
	retriever *retriever.Retriever
	llm       Generator
	callOpts  []llms.CallOption
}

func NewRAG(cfg *config.Config, chunkCache *cache.ChunkCache, llm Generator, callOpts ...llms.CallOption) *RAG {
	return &RAG{
		cfg:       cfg,
		cache:     chunkCache,
		retriever: retriever.New(cfg.RAG),
		llm:       llm,
		callOpts:  callOpts,
	}
}

// Index chunks doc, reusing cached chunks for an identical document chunked with
// the same settings. A previous version of the same source is dropped.
func (r *RAG) Index(ctx context.Context, doc *models.Document) []models.Chunk {
	return r.index(ctx, doc, true)
}

// IndexUpload is Index for uploaded documents, whose file names are not unique:
// other documents with the same name stay cached.
func (r *RAG) IndexUpload(ctx context.Context, doc *models.Document) []models.Chunk {
	return r.index(ctx, doc, false)
}

func (r *RAG) index(ctx context.Context, doc *models.Document, replace bool) []models.Chunk {
	entry := &models.Document{Key: r.cacheKey(doc.Key), Source: doc.Source}
	if chunks, ok := r.cache.Get(ctx, entry.Key); ok {
		log.Debug().Str("source", doc.Source).Int("chunks", len(chunks)).Msg("Using cached chunks")
		return chunks
	}

	chunks := parser.ChunkText(doc.Text, r.cfg.RAG)
	if len(chunks) == 0 {
		log.Warn().Str("source", doc.Source).Msg("Document has no extractable text")
	}
	if replace {
		r.cache.Put(ctx, entry, chunks)
	} else {
		r.cache.Add(ctx, entry, chunks)
	}
	log.Info().Str("source", doc.Source).Str("policy", r.cfg.RAG.ChunkPolicy).Int("chunks", len(chunks)).Msg("Indexed document")
	return chunks
}

// cacheKey identifies the chunks of a document under the current chunk settings,
// so persisted chunks built with other settings are never served.
func (r *RAG) cacheKey(docKey string) string {
	rc := r.cfg.RAG
	return fmt.Sprintf("%s/%s/%d/%d", docKey, rc.ChunkPolicy, rc.ChunkSize, rc.ChunkOverlap)
}

// LoadFile parses and indexes the document at path. A missing or unreadable
// document yields no chunks and an error wrapping models.ErrDocumentUnavailable;
// the caller decides whether to continue without context.
func (r *RAG) LoadFile(ctx context.Context, path string) ([]models.Chunk, *models.Document, error) {
	doc, err := parser.LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", models.ErrDocumentUnavailable, path, err)
	}
	return r.Index(ctx, doc), doc, nil
}

// Chunks returns the cached chunks of an indexed document by its document key.
func (r *RAG) Chunks(ctx context.Context, key string) ([]models.Chunk, bool) {
	return r.cache.Get(ctx, r.cacheKey(key))
}

// Retrieve scores chunks against query and joins the best ones into a context.
func (r *RAG) Retrieve(query string, chunks []models.Chunk) ([]models.ScoredChunk, string) {
	results := r.retriever.Retrieve(query, chunks)
	return results, r.retriever.JoinContext(results)
}

// Query answers a single turn without keeping history.
func (r *RAG) Query(ctx context.Context, chunks []models.Chunk, query string, opts ...llms.CallOption) (*models.PromptResponse, error) {
	return r.answer(ctx, chunks, nil, query, opts...)
}

func (r *RAG) answer(ctx context.Context, chunks []models.Chunk, history []models.ChatMessage, query string, opts ...llms.CallOption) (*models.PromptResponse, error) {
	results, docContext := r.Retrieve(query, chunks)
	log.Debug().Int("matches", len(results)).Int("history", len(history)).Msg("Retrieved context")

	messages := BuildMessages(r.cfg.LLM.SystemPrompt, docContext, history, query, r.cfg.RAG.HistoryLimit)

	callOpts := append(append([]llms.CallOption{}, r.callOpts...), opts...)
	resp, err := r.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	return &models.PromptResponse{
		Query:   query,
		Source:  docContext,
		Content: resp.Choices[0].Content,
	}, nil
}

// BuildMessages assembles a chat-completion request: a system instruction carrying
// the context, at most historyLimit trailing history entries, then the new turn.
func BuildMessages(systemPrompt, docContext string, history []models.ChatMessage, query string, historyLimit int) []llms.MessageContent {
	system := fmt.Sprintf(models.ContextPromptTemplate, systemPrompt, docContext)
	if docContext == "" {
		system = fmt.Sprintf(models.ContextPromptTemplate, systemPrompt, models.NoContextNote)
	}

	if historyLimit >= 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, system))
	for _, m := range history {
		role := schema.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, query))
	return messages
}
