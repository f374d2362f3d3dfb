package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"keyword-rag/internal/config"
	"keyword-rag/internal/models"
)

// Chunks are stored verbatim with a constant unit vector; lookups are by ID
// only, never by similarity.
var unitVector = []float32{1}

const (
	metaDocKey   = "doc_key"
	metaKind     = "kind"
	metaSource   = "source"
	metaChunks   = "chunks"
	kindManifest = "manifest"
	kindChunk    = "chunk"
)

// VectorDBManager stores chunk sequences in a chromem-go collection. Each document
// has a manifest entry (ID = document key) and one entry per chunk.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

// NewVectorDBManager opens (or creates) the chromem database described by cfg.
func NewVectorDBManager(cfg *config.ChromemConfig) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		filePath:      cfg.Path + "/" + cfg.Collection + ".chromem",
	}
	if _, err := m.GetOrCreateCollection(cfg.Collection); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, constantEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func constantEmbedding(_ context.Context, _ string) ([]float32, error) {
	return unitVector, nil
}

func chunkID(key string, chunkID int) string {
	return key + "-" + strconv.Itoa(chunkID)
}

// Save replaces the chunks stored under key.
func (m *VectorDBManager) Save(ctx context.Context, key, source string, chunks []models.Chunk) error {
	if err := m.Delete(ctx, key); err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:      chunkID(key, c.ChunkID),
			Content: c.Content,
			Metadata: map[string]string{
				metaDocKey: key,
				metaKind:   kindChunk,
			},
			Embedding: unitVector,
		})
	}
	if len(docs) > 0 {
		if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("failed to add chunks: %w", err)
		}
	}

	// manifest goes last so a partial write is never visible as complete
	manifest := chromem.Document{
		ID:      key,
		Content: source,
		Metadata: map[string]string{
			metaDocKey: key,
			metaKind:   kindManifest,
			metaSource: source,
			metaChunks: strconv.Itoa(len(chunks)),
		},
		Embedding: unitVector,
	}
	if err := m.collection.AddDocument(ctx, manifest); err != nil {
		return fmt.Errorf("failed to add manifest: %w", err)
	}
	log.Debug().Str("key", key).Int("chunks", len(chunks)).Msg("Stored chunks in chromem")
	return nil
}

// Load returns the chunks stored under key in document order.
func (m *VectorDBManager) Load(ctx context.Context, key string) ([]models.Chunk, error) {
	manifest, err := m.collection.GetByID(ctx, key)
	if err != nil {
		return nil, models.ErrChunksNotFound
	}
	n, err := strconv.Atoi(manifest.Metadata[metaChunks])
	if err != nil {
		return nil, fmt.Errorf("corrupt manifest for %s: %w", key, err)
	}

	chunks := make([]models.Chunk, 0, n)
	for i := 1; i <= n; i++ {
		doc, err := m.collection.GetByID(ctx, chunkID(key, i))
		if err != nil {
			return nil, fmt.Errorf("missing chunk %d of %s: %w", i, key, err)
		}
		chunks = append(chunks, models.Chunk{ChunkID: i, Content: doc.Content})
	}
	return chunks, nil
}

func (m *VectorDBManager) Delete(ctx context.Context, key string) error {
	if err := m.collection.Delete(ctx, map[string]string{metaDocKey: key}, nil); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// Export writes the collection to an encrypted file next to the database.
func (m *VectorDBManager) Export(ctx context.Context) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	if m.dbPath == "" {
		return fmt.Errorf("db path is required")
	}

	log.Debug().Str("collection", m.collection.Name).Str("file", m.filePath).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import restores the collection from the file written by Export.
func (m *VectorDBManager) Import(ctx context.Context) error {
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := m.db.GetCollection(m.collection.Name, constantEmbedding)
	if c == nil {
		return fmt.Errorf("collection %s missing after import", m.collection.Name)
	}
	m.collection = c
	return nil
}
