package sources

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/hazyhaar/flowkeeper/chunk"
	"github.com/hazyhaar/flowkeeper/docpipe"
	"github.com/hazyhaar/flowkeeper/faults"
)

// Files loads documents from a file or a directory tree.
type Files struct {
	Pipeline *docpipe.Pipeline
	Chunk    chunk.Options
	Logger   *slog.Logger
}

// Load extracts and chunks every supported file under root, in lexical
// path order. Files docpipe cannot read are reported as warnings.
func (f Files) Load(ctx context.Context, root string) ([]FileChunk, []faults.ParseWarning, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pipe := f.Pipeline
	if pipe == nil {
		pipe = docpipe.New(docpipe.Config{Logger: logger})
	}

	paths, err := listFiles(root)
	if err != nil {
		return nil, nil, err
	}

	var chunks []FileChunk
	var warnings []faults.ParseWarning
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return chunks, warnings, err
		}
		doc, err := pipe.Extract(ctx, path)
		if err != nil {
			logger.Warn("sources: skipping file", "path", path, "error", err)
			warnings = append(warnings, faults.Warn(path, err))
			continue
		}
		for _, page := range doc.Pages {
			for _, c := range chunk.Split(page.Text, f.Chunk) {
				chunks = append(chunks, FileChunk{
					Path:  path,
					Title: doc.Title,
					Page:  page.Number,
					Chunk: c.Index,
					Text:  c.Text,
				})
			}
		}
	}
	return chunks, warnings, nil
}

// listFiles returns root itself when it is a file, otherwise every regular
// file below it. Hidden directories are skipped.
func listFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && len(d.Name()) > 1 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	sort.Strings(paths)
	return paths, err
}
