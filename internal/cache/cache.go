// Package cache keeps chunked documents for the lifetime of the process,
// optionally backed by a persistent store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"keyword-rag/internal/models"
)

// Store persists chunk sequences by document key. Load returns
// models.ErrChunksNotFound for unknown keys.
type Store interface {
	Load(ctx context.Context, key string) ([]models.Chunk, error)
	Save(ctx context.Context, key, source string, chunks []models.Chunk) error
	Delete(ctx context.Context, key string) error
}

type ChunkCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, []models.Chunk]
	store   Store
	// source -> key of the version last put, used to drop stale versions
	sources map[string]string
}

// New creates a cache holding up to size documents in memory. store may be nil.
func New(size int, store Store) (*ChunkCache, error) {
	entries, err := lru.New[string, []models.Chunk](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &ChunkCache{
		entries: entries,
		store:   store,
		sources: make(map[string]string),
	}, nil
}

// Get returns the chunks for key from memory, then from the store.
func (c *ChunkCache) Get(ctx context.Context, key string) ([]models.Chunk, bool) {
	if chunks, ok := c.entries.Get(key); ok {
		return slices.Clone(chunks), true
	}
	if c.store == nil {
		return nil, false
	}

	chunks, err := c.store.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, models.ErrChunksNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("Error loading chunks from store")
		}
		return nil, false
	}
	log.Debug().Str("key", key).Int("chunks", len(chunks)).Msg("Chunk store hit")
	c.entries.Add(key, chunks)
	return slices.Clone(chunks), true
}

// Put caches the chunks of doc. A different version previously put for the same
// source is invalidated.
func (c *ChunkCache) Put(ctx context.Context, doc *models.Document, chunks []models.Chunk) {
	c.mu.Lock()
	stale, seen := c.sources[doc.Source]
	c.sources[doc.Source] = doc.Key
	c.mu.Unlock()

	if seen && stale != doc.Key {
		log.Info().Str("source", doc.Source).Str("stale_key", stale).Msg("Document changed, invalidating cached chunks")
		c.Invalidate(ctx, stale)
	}
	c.Add(ctx, doc, chunks)
}

// Add caches the chunks of doc without touching other entries of the same
// source. Used when a source name does not identify a document, as with uploads.
func (c *ChunkCache) Add(ctx context.Context, doc *models.Document, chunks []models.Chunk) {
	c.entries.Add(doc.Key, slices.Clone(chunks))
	if c.store != nil {
		if err := c.store.Save(ctx, doc.Key, doc.Source, chunks); err != nil {
			log.Warn().Err(err).Str("key", doc.Key).Msg("Error saving chunks to store")
		}
	}
}

func (c *ChunkCache) Invalidate(ctx context.Context, key string) {
	c.entries.Remove(key)
	if c.store != nil {
		if err := c.store.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Error deleting chunks from store")
		}
	}
}

// Purge empties the in-memory cache. Persisted chunks are kept.
func (c *ChunkCache) Purge() {
	c.entries.Purge()
	c.mu.Lock()
	c.sources = make(map[string]string)
	c.mu.Unlock()
}

func (c *ChunkCache) Len() int {
	return c.entries.Len()
}
