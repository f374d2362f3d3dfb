package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"keyword-rag/internal/config"
	"keyword-rag/internal/models"
)

var blankLineRe = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// ChunkText splits document text into ordered, trimmed, non-empty chunks
// according to cfg.ChunkPolicy. Empty text yields no chunks.
func ChunkText(content string, cfg config.RAGConfig) []models.Chunk {
	var parts []string
	switch cfg.ChunkPolicy {
	case config.ChunkPolicyParagraphs:
		parts = chunkParagraphs(content)
	case config.ChunkPolicyWindow:
		parts = chunkWindow(content, cfg.ChunkSize, cfg.ChunkOverlap)
	default:
		parts = chunkLines(content, cfg.ChunkSize)
	}

	chunks := make([]models.Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, models.Chunk{ChunkID: i + 1, Content: part})
	}
	return chunks
}

// chunkLines accumulates non-empty trimmed lines, space separated, while
// len(buffer)+len(line) stays within maxChars runes. The joining space is not
// counted, so a chunk may end one rune past maxChars. A line longer than
// maxChars is emitted on its own rather than cut.
func chunkLines(content string, maxChars int) []string {
	var chunks []string
	var buf strings.Builder
	bufLen := 0

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lineLen := utf8.RuneCountInString(line)
		if bufLen > 0 && bufLen+lineLen > maxChars {
			chunks = append(chunks, buf.String())
			buf.Reset()
			bufLen = 0
		}
		if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(line)
		bufLen += lineLen
	}
	if bufLen > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

func chunkParagraphs(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var chunks []string
	for _, p := range blankLineRe.Split(content, -1) {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}

// chunkWindow cuts content into windows of maxChars runes overlapping by
// overlapChars. Both ends of a window snap to whitespace.
func chunkWindow(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	runes := []rune(strings.TrimSpace(content))
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= maxChars {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < n {
		end := min(start+maxChars, n)
		if end < n && !unicode.IsSpace(runes[end]) {
			cut := end
			for cut > start && !unicode.IsSpace(runes[cut-1]) {
				cut--
			}
			if cut > start {
				end = cut
			} else {
				// a single token longer than the window
				for end < n && !unicode.IsSpace(runes[end]) {
					end++
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= n {
			break
		}

		next := end - overlapChars
		if next <= start {
			next = end
		}
		for next < end && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		for next < n && unicode.IsSpace(runes[next]) {
			next++
		}
		start = next
	}
	return chunks
}
