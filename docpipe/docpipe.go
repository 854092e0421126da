// CLAUDE:SUMMARY Extracts page-indexed plain text from document files (txt, md, html, pdf, docx) for chunked ingestion.
// Package docpipe extracts text from document files.
//
// Supported formats:
//   - .txt, .text, .log  plain text
//   - .md, .markdown     Markdown, heading markers stripped
//   - .html, .htm        sanitized (bluemonday) then converted to Markdown
//   - .pdf               one page per PDF page (pdfcpu content streams)
//   - .docx              word/document.xml paragraphs
//
// Every format yields at least one Page; page numbers start at 0 so that
// chunk ids read "p<page>::c<chunk>".
//
//	pipe := docpipe.New(docpipe.Config{})
//	doc, err := pipe.Extract(ctx, "specs/login.pdf")
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned by Detect for unknown extensions.
var ErrUnsupported = errors.New("docpipe: unsupported format")

// Format identifies a document type.
type Format string

const (
	FormatTXT  Format = "txt"
	FormatMD   Format = "md"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDocx Format = "docx"
)

// Page is one extraction unit: a PDF page, or the whole text of other
// formats.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is the result of Extract.
type Document struct {
	Path   string `json:"path"`
	Format Format `json:"format"`
	Title  string `json:"title"`
	Pages  []Page `json:"pages"`
}

// Text joins all pages with blank lines.
func (d *Document) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Config configures the pipeline.
type Config struct {
	// MaxFileSize in bytes. Default: 50 MB.
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 50 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pipeline extracts documents. It is stateless and safe for concurrent use.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{cfg: cfg, logger: cfg.Logger}
}

// Detect returns the format of path from its extension.
func Detect(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".log":
		return FormatTXT, nil
	case ".md", ".markdown":
		return FormatMD, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDocx, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
}

// Supported reports whether Detect accepts path.
func Supported(path string) bool {
	_, err := Detect(path)
	return err == nil
}

// Extract reads path and returns its text. Documents without any text
// are an error.
func (p *Pipeline) Extract(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("docpipe: stat %s: %w", path, err)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("docpipe: %s: %d bytes exceeds %d", path, info.Size(), p.cfg.MaxFileSize)
	}

	p.logger.Debug("docpipe: extracting", "path", path, "format", format)

	var title string
	var pages []Page
	switch format {
	case FormatTXT:
		title, pages, err = extractText(path)
	case FormatMD:
		title, pages, err = extractMarkdown(path)
	case FormatHTML:
		title, pages, err = extractHTMLFile(path)
	case FormatPDF:
		title, pages, err = extractPDF(path)
	case FormatDocx:
		title, pages, err = extractDocx(path)
	}
	if err != nil {
		return nil, fmt.Errorf("docpipe: extract %s: %w", path, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("docpipe: %s: no text content", path)
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &Document{Path: path, Format: format, Title: title, Pages: pages}, nil
}

// singlePage wraps text as page 0, or no pages when text is blank.
func singlePage(text string) []Page {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return []Page{{Number: 0, Text: text}}
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if r := []rune(text); len(r) > 120 {
		text = string(r[:120])
	}
	return text
}
