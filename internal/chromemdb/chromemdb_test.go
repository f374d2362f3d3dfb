package chromemdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyword-rag/internal/config"
	"keyword-rag/internal/models"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T, inMemory bool) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager(&config.ChromemConfig{
		Path:          t.TempDir(),
		Collection:    "test_chunks",
		InMemory:      inMemory,
		EncryptionKey: testKey,
	})
	require.NoError(t, err)
	return m
}

var chunks = []models.Chunk{
	{ChunkID: 1, Content: "The passing grade is 50%."},
	{ChunkID: 2, Content: "Attendance must be at least 80%."},
	{ChunkID: 3, Content: "Probation requires GPA below 1.7."},
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, true)

	require.NoError(t, m.Save(ctx, "doc1", "handbook.pdf", chunks))
	got, err := m.Load(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, chunks, got)
	assert.Equal(t, len(chunks)+1, m.Count())
}

func TestLoad_Unknown(t *testing.T) {
	m := newTestManager(t, true)

	_, err := m.Load(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrChunksNotFound)
}

func TestSave_ReplacesPreviousVersion(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, true)

	require.NoError(t, m.Save(ctx, "doc1", "handbook.pdf", chunks))
	require.NoError(t, m.Save(ctx, "doc1", "handbook.pdf", chunks[:1]))

	got, err := m.Load(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, chunks[:1], got)
	assert.Equal(t, 2, m.Count())
}

func TestSave_EmptyDocument(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, true)

	require.NoError(t, m.Save(ctx, "scanned", "scanned.pdf", nil))
	got, err := m.Load(ctx, "scanned")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, true)

	require.NoError(t, m.Save(ctx, "doc1", "a.pdf", chunks))
	require.NoError(t, m.Save(ctx, "doc2", "b.pdf", chunks[:2]))
	require.NoError(t, m.Delete(ctx, "doc1"))

	_, err := m.Load(ctx, "doc1")
	require.ErrorIs(t, err, models.ErrChunksNotFound)
	got, err := m.Load(ctx, "doc2")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestPersistentReopen(t *testing.T) {
	ctx := context.Background()
	cfg := &config.ChromemConfig{Path: t.TempDir(), Collection: "test_chunks"}

	m, err := NewVectorDBManager(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Save(ctx, "doc1", "handbook.pdf", chunks))

	reopened, err := NewVectorDBManager(cfg)
	require.NoError(t, err)
	got, err := reopened.Load(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, chunks, got)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, true)
	require.NoError(t, m.Save(ctx, "doc1", "handbook.pdf", chunks))
	require.NoError(t, m.Export(ctx))

	require.NoError(t, m.Delete(ctx, "doc1"))
	require.NoError(t, m.Import(ctx))

	got, err := m.Load(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, chunks, got)
}

func TestExport_RequiresKey(t *testing.T) {
	m, err := NewVectorDBManager(&config.ChromemConfig{
		Path:       t.TempDir(),
		Collection: "test_chunks",
		InMemory:   true,
	})
	require.NoError(t, err)
	require.Error(t, m.Export(context.Background()))
}
