package models

// Chunk represents a parsed chunk. ChunkID is its 1-based position in the document.
type Chunk struct {
	ChunkID int    `json:"chunk_id"`
	Content string `json:"content"`
}

// ScoredChunk pairs a chunk with its token overlap score against a query.
type ScoredChunk struct {
	Score int   `json:"score"`
	Chunk Chunk `json:"chunk"`
}

// Document is the extracted text of one source file. Key is the hex SHA-256 of
// the raw bytes and identifies the document for caching.
type Document struct {
	Key    string
	Source string
	Text   string
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
}
