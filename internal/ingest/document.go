package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Page is the text of one page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Document is a loaded report ready for splitting.
type Document struct {
	Name  string
	Path  string
	Pages []Page
}

// Supported reports whether path has an extension the loader understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".md", ".markdown", ".txt":
		return true
	default:
		return false
	}
}

// Load parses data according to the file extension of path.
func Load(path string, data []byte) (*Document, error) {
	doc := &Document{Name: filepath.Base(path), Path: path}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		doc.Pages, err = loadPDF(data)
	case ".md", ".markdown":
		doc.Pages = loadMarkdown(data)
	case ".txt":
		doc.Pages = loadText(data)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", doc.Name, err)
	}
	return doc, nil
}

func loadPDF(data []byte) ([]Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	pages := make([]Page, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: normalizeText(content)})
	}
	return pages, nil
}

// loadText splits plain text on form feeds, the page break most exporters emit.
func loadText(data []byte) []Page {
	parts := strings.Split(string(data), "\f")
	pages := make([]Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, Page{Number: i + 1, Text: normalizeText(part)})
	}
	return pages
}

var markdownParser = goldmark.New(goldmark.WithExtensions(extension.Table))

// loadMarkdown renders markdown to plain text and treats each top-level
// section (level 1 or 2 heading) as one page.
func loadMarkdown(data []byte) []Page {
	doc := markdownParser.Parser().Parse(text.NewReader(data))

	var pages []Page
	var current strings.Builder
	flush := func() {
		if s := normalizeText(current.String()); s != "" {
			pages = append(pages, Page{Number: len(pages) + 1, Text: s})
		}
		current.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level <= 2 {
			flush()
		}
		writeBlock(&current, n, data)
	}
	flush()
	return pages
}

// writeBlock appends the text content of a block node followed by a blank line.
func writeBlock(b *strings.Builder, n ast.Node, source []byte) {
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch node.(type) {
			case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.TextBlock:
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteString(" ")
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.CodeSpan:
			for c := t.FirstChild(); c != nil; c = c.NextSibling() {
				if s, ok := c.(*ast.Text); ok {
					b.Write(s.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	b.WriteString("\n")
}

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// normalizeText unifies line endings, strips trailing spaces and collapses blank runs.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
