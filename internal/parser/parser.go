package parser

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"keyword-rag/internal/models"
)

// LoadFile reads and extracts the text of a document on disk.
func LoadFile(filePath string) (*models.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return LoadBytes(filePath, data)
}

// LoadBytes extracts the text of an uploaded document. The format is chosen by
// the extension of name.
func LoadBytes(name string, data []byte) (*models.Document, error) {
	content, err := extractText(name, data)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return &models.Document{
		Key:    hex.EncodeToString(sum[:]),
		Source: name,
		Text:   content,
	}, nil
}

func extractText(name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return parsePDF(data)
	case ".docx":
		return parseDOCX(data)
	case ".pptx":
		return parsePPTX(data)
	case ".xlsx", ".xlsm":
		return parseXLSX(data)
	case ".md", ".markdown":
		return parseMarkdown(data), nil
	case ".txt":
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)
	}
}

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var pages []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		// blank pages carry no content stream
		if page.V.IsNull() || page.V.Key("Contents").IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pages = append(pages, pageText)
	}
	log.Debug().Int("pages", numPages).Msg("Extracted pdf text")
	return strings.Join(pages, "\n"), nil
}

func parseDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var paragraphs []string
	for _, p := range strings.Split(content, "</w:p>") {
		if t := strings.TrimSpace(extractTextFromXML(p, "w:t")); t != "" {
			paragraphs = append(paragraphs, t)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func parsePPTX(data []byte) (string, error) {
	f, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pptx: %w", err)
	}

	var slides []*zip.File
	for _, file := range f.File {
		if strings.HasPrefix(file.Name, "ppt/slides/slide") && strings.HasSuffix(file.Name, ".xml") {
			slides = append(slides, file)
		}
	}
	// slide2.xml must come before slide10.xml
	sort.Slice(slides, func(i, j int) bool {
		if len(slides[i].Name) != len(slides[j].Name) {
			return len(slides[i].Name) < len(slides[j].Name)
		}
		return slides[i].Name < slides[j].Name
	})

	var texts []string
	for _, file := range slides {
		rc, err := file.Open()
		if err != nil {
			continue
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(extractTextFromXML(string(raw), "a:t")); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

func parseXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var sheets strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		sheets.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			sheets.WriteString(strings.Join(row, "\t"))
			sheets.WriteString("\n")
		}
		sheets.WriteString("\n")
	}
	return sheets.String(), nil
}

// parseMarkdown renders markdown to plain text, one blank line between blocks.
func parseMarkdown(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var buf strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch node := n.(type) {
			case *ast.Text:
				buf.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			case *ast.FencedCodeBlock, *ast.CodeBlock:
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(src))
				}
			}
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock && n.Kind() != ast.KindList {
			buf.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// extractTextFromXML concatenates the text of every <tag>...</tag> element.
func extractTextFromXML(xmlContent, tag string) string {
	var out strings.Builder
	open, closing := "<"+tag, "</"+tag+">"
	rest := xmlContent
	for {
		start := strings.Index(rest, open)
		if start < 0 {
			break
		}
		rest = rest[start+len(open):]
		// skip <w:tab/>, <w:tbl> and other tags sharing the prefix
		if len(rest) == 0 || (rest[0] != '>' && rest[0] != ' ') {
			continue
		}
		gt := strings.IndexByte(rest, '>')
		if gt < 0 {
			break
		}
		if gt > 0 && rest[gt-1] == '/' {
			rest = rest[gt+1:]
			continue
		}
		rest = rest[gt+1:]
		end := strings.Index(rest, closing)
		if end < 0 {
			break
		}
		out.WriteString(html.UnescapeString(rest[:end]))
		rest = rest[end+len(closing):]
	}
	return out.String()
}
