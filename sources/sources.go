// CLAUDE:SUMMARY Content loaders feeding the ingest service: local documents, same-host web crawl, Jira search, UI-crawl logs, Playwright scripts.
// Package sources turns external content into units the ingest service can
// prepare and gate. Loaders never store anything themselves.
//
// A loader that fails on one file or page logs a warning, records a
// faults.ParseWarning and moves on; only setup failures (unreadable root,
// bad credentials, malformed crawl log) are returned as errors.
package sources

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileChunk is one chunk of one page of a local document.
type FileChunk struct {
	Path  string
	Title string
	Page  int
	Chunk int
	Text  string
}

// FlowName is "<file base>::chunk_<j>".
func (c FileChunk) FlowName() string {
	return fmt.Sprintf("%s::chunk_%d", filepath.Base(c.Path), c.Chunk)
}

// StepName is "p<page>::c<chunk>".
func (c FileChunk) StepName() string {
	return fmt.Sprintf("p%d::c%d", c.Page, c.Chunk)
}

// WebChunk is one chunk of a crawled page.
type WebChunk struct {
	URL   string
	Title string
	Depth int
	Index int
	Text  string
}

// Key is "<url>::chunk_<i>".
func (c WebChunk) Key() string {
	return fmt.Sprintf("%s::chunk_%d", c.URL, c.Index)
}

// Issue is one Jira issue.
type Issue struct {
	Key         string
	Summary     string
	Description string
	Type        string
	Project     string
	Status      string
}

// Content is "summary\ndescription".
func (i Issue) Content() string {
	return i.Summary + "\n" + i.Description
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
