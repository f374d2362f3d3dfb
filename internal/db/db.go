package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"keyword-rag/internal/config"
	"keyword-rag/internal/models"
)

type DocumentChunk struct {
	bun.BaseModel `bun:"table:document_chunks,alias:dc"`
	DocKey        string `bun:"doc_key,pk"`
	ChunkID       int    `bun:"chunk_id,pk"`
	Source        string `bun:"source,notnull"`
	Content       string `bun:"content,notnull"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool using the configured driver.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	switch cfg.Driver {
	case config.DriverPq:
		return sql.Open("postgres", cfg.DSN)
	default:
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*DocumentChunk)(nil)).IfNotExists().Exec(ctx)
	return err
}

func DropChunks(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*DocumentChunk)(nil)).IfExists().Exec(ctx)
	return err
}

// ChunkStore persists chunk sequences in PostgreSQL.
type ChunkStore struct {
	db *bun.DB
}

func NewChunkStore(db *bun.DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// Save replaces every row of key in one transaction.
func (s *ChunkStore) Save(ctx context.Context, key, source string, chunks []models.Chunk) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*DocumentChunk)(nil)).Where("doc_key = ?", key).Exec(ctx); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		rows := make([]DocumentChunk, len(chunks))
		for i, c := range chunks {
			rows[i] = DocumentChunk{DocKey: key, ChunkID: c.ChunkID, Source: source, Content: c.Content}
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
}

// Load returns the chunks of key ordered by chunk id.
func (s *ChunkStore) Load(ctx context.Context, key string) ([]models.Chunk, error) {
	var rows []DocumentChunk
	err := s.db.NewSelect().
		Model(&rows).
		Where("doc_key = ?", key).
		Order("chunk_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrChunksNotFound
	}

	chunks := make([]models.Chunk, len(rows))
	for i, r := range rows {
		chunks[i] = models.Chunk{ChunkID: r.ChunkID, Content: r.Content}
	}
	return chunks, nil
}

func (s *ChunkStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().Model((*DocumentChunk)(nil)).Where("doc_key = ?", key).Exec(ctx)
	return err
}
