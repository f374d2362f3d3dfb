// Package retriever ranks chunks against a query by literal word overlap.
package retriever

import (
	"regexp"
	"sort"
	"strings"

	"keyword-rag/internal/config"
	"keyword-rag/internal/models"
)

const defaultTopK = 3

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

type Retriever struct {
	topK          int
	keepZeroScore bool
	separator     string
	stopWords     map[string]struct{}
}

func New(cfg config.RAGConfig) *Retriever {
	r := &Retriever{
		topK:          cfg.TopK,
		keepZeroScore: cfg.KeepZeroScore,
		separator:     cfg.ContextSeparator,
		stopWords:     make(map[string]struct{}, len(cfg.StopWords)),
	}
	if r.topK <= 0 {
		r.topK = defaultTopK
	}
	if r.separator == "" {
		r.separator = "\n\n"
	}
	for _, w := range cfg.StopWords {
		r.stopWords[strings.ToLower(w)] = struct{}{}
	}
	return r
}

// Tokenize returns the set of lowercase letter/digit runs in s.
func Tokenize(s string) map[string]struct{} {
	words := tokenRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func (r *Retriever) tokens(s string) map[string]struct{} {
	set := Tokenize(s)
	for w := range r.stopWords {
		delete(set, w)
	}
	return set
}

// Score is the number of distinct tokens shared by query and chunk.
func (r *Retriever) Score(query, chunk string) int {
	return overlap(r.tokens(query), r.tokens(chunk))
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

// Retrieve returns at most topK chunks by descending score. Equal scores keep
// document order. Zero-score chunks are dropped unless keepZeroScore is set.
func (r *Retriever) Retrieve(query string, chunks []models.Chunk) []models.ScoredChunk {
	if len(chunks) == 0 {
		return nil
	}

	q := r.tokens(query)
	scored := make([]models.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		score := 0
		if len(q) > 0 {
			score = overlap(q, r.tokens(c.Content))
		}
		if score == 0 && !r.keepZeroScore {
			continue
		}
		scored = append(scored, models.ScoredChunk{Score: score, Chunk: c})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > r.topK {
		scored = scored[:r.topK]
	}
	if len(scored) == 0 {
		return nil
	}
	return scored
}

// JoinContext concatenates the retrieved chunk contents with the separator.
func (r *Retriever) JoinContext(results []models.ScoredChunk) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, res.Chunk.Content)
	}
	return strings.Join(parts, r.separator)
}

// Context retrieves and joins in one step. It returns "" when nothing matches.
func (r *Retriever) Context(query string, chunks []models.Chunk) string {
	return r.JoinContext(r.Retrieve(query, chunks))
}
