package parser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyword-rag/internal/config"
	"keyword-rag/internal/models"
)

func ragConfig(policy string, size, overlap int) config.RAGConfig {
	return config.RAGConfig{ChunkPolicy: policy, ChunkSize: size, ChunkOverlap: overlap}
}

func contents(chunks []models.Chunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Content)
	}
	return out
}

const handbook = `Student Handbook

The passing grade is 50%.
Attendance must be at least 80%.

   Probation requires GPA below 1.7.
Appeals are filed with the registrar within ten working days of the decision.
`

func TestChunkText_Lines(t *testing.T) {
	chunks := ChunkText(handbook, ragConfig(config.ChunkPolicyLines, 60, 0))

	assert.Equal(t, []string{
		"Student Handbook The passing grade is 50%.",
		"Attendance must be at least 80%.",
		"Probation requires GPA below 1.7.",
		"Appeals are filed with the registrar within ten working days of the decision.",
	}, contents(chunks))

	for i, c := range chunks {
		assert.Equal(t, i+1, c.ChunkID)
	}
}

func TestChunkText_LinesRespectBound(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("lorem ipsum dolor sit amet\n")
	}
	chunks := ChunkText(b.String(), ragConfig(config.ChunkPolicyLines, 100, 0))
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		// the joining space is not counted against the bound
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 101)
	}
}

func TestChunkText_LinesBoundExcludesSeparator(t *testing.T) {
	tests := []struct {
		name string
		size int
		want []string
	}{
		{name: "exact fit", size: 9, want: []string{"aaaa bbbbb"}},
		{name: "one over", size: 8, want: []string{"aaaa", "bbbbb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkText("aaaa\nbbbbb", ragConfig(config.ChunkPolicyLines, tt.size, 0))
			assert.Equal(t, tt.want, contents(chunks))
		})
	}
}

func TestChunkText_LongLineIsNotTruncated(t *testing.T) {
	long := strings.Repeat("x", 50)
	chunks := ChunkText("short\n"+long+"\nend", ragConfig(config.ChunkPolicyLines, 10, 0))
	assert.Equal(t, []string{"short", long, "end"}, contents(chunks))
}

func TestChunkText_Paragraphs(t *testing.T) {
	chunks := ChunkText(handbook, ragConfig(config.ChunkPolicyParagraphs, 0, 0))

	assert.Equal(t, []string{
		"Student Handbook",
		"The passing grade is 50%.\nAttendance must be at least 80%.",
		"Probation requires GPA below 1.7.\nAppeals are filed with the registrar within ten working days of the decision.",
	}, contents(chunks))
}

func TestChunkText_ParagraphsWhitespaceOnlySeparator(t *testing.T) {
	chunks := ChunkText("one\r\n \r\ntwo\n\t\n\nthree", ragConfig(config.ChunkPolicyParagraphs, 0, 0))
	assert.Equal(t, []string{"one", "two", "three"}, contents(chunks))
}

func TestChunkText_Window(t *testing.T) {
	words := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		words = append(words, "token")
	}
	doc := strings.Join(words, " ")

	chunks := ChunkText(doc, ragConfig(config.ChunkPolicyWindow, 60, 20))
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 60)
		for _, w := range strings.Fields(c.Content) {
			assert.Equal(t, "token", w, "window split a token")
		}
	}
}

func TestChunkText_WindowOversizedToken(t *testing.T) {
	long := strings.Repeat("y", 30)
	chunks := ChunkText("a "+long+" b", ragConfig(config.ChunkPolicyWindow, 10, 3))
	for _, c := range chunks {
		for _, w := range strings.Fields(c.Content) {
			assert.Contains(t, []string{"a", "b", long}, w)
		}
	}
	assert.Contains(t, contents(chunks), long)
}

func TestChunkText_Empty(t *testing.T) {
	policies := []string{config.ChunkPolicyLines, config.ChunkPolicyParagraphs, config.ChunkPolicyWindow}
	for _, p := range policies {
		t.Run(p, func(t *testing.T) {
			assert.Empty(t, ChunkText("", ragConfig(p, 600, 100)))
			assert.Empty(t, ChunkText(" \n\n\t \n", ragConfig(p, 600, 100)))
		})
	}
}

func TestChunkText_NonEmptyTrimmedAndReconstructs(t *testing.T) {
	policies := []string{config.ChunkPolicyLines, config.ChunkPolicyParagraphs, config.ChunkPolicyWindow}
	for _, p := range policies {
		t.Run(p, func(t *testing.T) {
			chunks := ChunkText(handbook, ragConfig(p, 40, 0))
			require.NotEmpty(t, chunks)

			for _, c := range chunks {
				assert.NotEmpty(t, c.Content)
				assert.Equal(t, strings.TrimSpace(c.Content), c.Content)
			}
			joined := strings.Join(contents(chunks), " ")
			assert.Equal(t, strings.Fields(handbook), strings.Fields(joined))
		})
	}
}
