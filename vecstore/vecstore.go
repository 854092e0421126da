// CLAUDE:SUMMARY Document store for ingested artifacts: SQLite documents + FTS5 mirror + embeddings indexed by horosvec, with hybrid search.
// Package vecstore is the downstream store of the ingestion gate.
//
// Documents are keyed "<source>-<doc_id>" and upserted. Their content is
// mirrored into FTS5 by triggers. When an embedder is configured each
// document's vector is kept in doc_vectors and, once MinIndexSize vectors
// exist, in a horosvec ANN index sharing the same database. Below that
// size vector search is an exact scan.
//
//	st, err := vecstore.Open(vecstore.Config{DBPath: "data/vectors.db", Embedder: embed.New(cfg)})
//	defer st.Close()
//	err = st.AddDocument(ctx, "workflow_recorder", "flow::login::1a2b3c4d", content, md)
package vecstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/horosvec"

	"github.com/hazyhaar/flowkeeper/dbopen"
	"github.com/hazyhaar/flowkeeper/embed"
	"github.com/hazyhaar/flowkeeper/faults"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("vecstore: document not found")

// Config configures Open.
type Config struct {
	DBPath string `json:"db_path" yaml:"db_path"`

	// Embedder enables vector search. Nil: full-text search only.
	Embedder embed.Embedder `json:"-" yaml:"-"`

	// Horosvec overrides horosvec.DefaultConfig().
	Horosvec *horosvec.Config `json:"-" yaml:"-"`

	// MinIndexSize is the vector count at which the ANN index is built.
	// Default: 32.
	MinIndexSize int `json:"min_index_size" yaml:"min_index_size"`

	// CacheSize sets PRAGMA cache_size. Default: -64000 (64 MB).
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	Clock  func() time.Time `json:"-" yaml:"-"`
	Logger *slog.Logger     `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MinIndexSize <= 0 {
		c.MinIndexSize = 32
	}
	if c.CacheSize == 0 {
		c.CacheSize = -64000
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Document is a stored artifact.
type Document struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	DocID     string         `json:"doc_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store is the document store handle.
type Store struct {
	db       *sql.DB
	ownsDB   bool
	index    *horosvec.Index
	emb      embed.Embedder
	minIndex int
	now      func() time.Time
	logger   *slog.Logger

	// indexMu serialises index builds and inserts.
	indexMu sync.Mutex
}

// Open opens (or creates) the store at cfg.DBPath.
func Open(cfg Config) (*Store, error) {
	cfg.defaults()
	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithCacheSize(cfg.CacheSize),
		dbopen.WithSchema(Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("vecstore: %w", err)
	}
	s, err := newStore(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewFromDB builds a Store on an open database, applying Schema. The
// caller keeps ownership of db.
func NewFromDB(db *sql.DB, cfg Config) (*Store, error) {
	cfg.defaults()
	if _, err := db.Exec(Schema); err != nil {
		return nil, faults.Unavailable(fmt.Errorf("vecstore: schema: %w", err))
	}
	return newStore(db, cfg)
}

func newStore(db *sql.DB, cfg Config) (*Store, error) {
	hc := horosvec.DefaultConfig()
	if cfg.Horosvec != nil {
		hc = *cfg.Horosvec
	}
	idx, err := horosvec.New(db, hc)
	if err != nil {
		return nil, faults.Unavailable(fmt.Errorf("vecstore: open index: %w", err))
	}
	return &Store{
		db:       db,
		index:    idx,
		emb:      cfg.Embedder,
		minIndex: cfg.MinIndexSize,
		now:      cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// Close closes the index, and the database when Open created it.
func (s *Store) Close() error {
	err := s.index.Close()
	if s.ownsDB {
		if cerr := s.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// DocumentID is the store key of (source, docID).
func DocumentID(source, docID string) string {
	return source + "-" + docID
}

// AddDocument upserts content under DocumentID(source, docID). Metadata is
// flattened: nil values are dropped, lists and maps are JSON-encoded.
func (s *Store) AddDocument(ctx context.Context, source, docID, content string, md map[string]any) error {
	id := DocumentID(source, docID)
	mdJSON, err := json.Marshal(Flatten(md))
	if err != nil {
		return faults.Malformedf("vecstore: metadata for %s: %w", id, err)
	}

	var vec []float32
	if s.emb != nil {
		vec, err = s.emb.Embed(ctx, content)
		if err != nil {
			return faults.Unavailable(fmt.Errorf("vecstore: embed %s: %w", id, err))
		}
		if embed.Norm(vec) == 0 {
			vec = nil
		}
	}

	now := s.now().UnixMilli()
	err = dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, source, doc_id, content, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				metadata = excluded.metadata,
				updated_at = excluded.updated_at`,
			id, source, docID, content, string(mdJSON), now, now); err != nil {
			return err
		}
		if vec == nil {
			_, err := tx.ExecContext(ctx, `DELETE FROM doc_vectors WHERE id = ?`, id)
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO doc_vectors (id, vector) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET vector = excluded.vector`,
			id, embed.Serialize(vec))
		return err
	})
	if err != nil {
		return faults.Unavailable(fmt.Errorf("vecstore: add %s: %w", id, err))
	}

	if vec != nil {
		if err := s.indexVector(ctx, id, vec); err != nil {
			// The exact scan still covers the document.
			s.logger.Warn("vecstore: ann index update failed", "id", id, "error", err)
		}
	}
	return nil
}

// Get returns the document stored under id.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, doc_id, content, metadata, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, faults.Unavailable(fmt.Errorf("vecstore: get %s: %w", id, err))
	}
	return d, nil
}

// DeleteDocument removes the document stored under id. Unknown ids are a
// no-op.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM doc_vectors WHERE id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return faults.Unavailable(fmt.Errorf("vecstore: delete %s: %w", id, err))
	}
	return nil
}

// DeleteBySource removes every document of source and returns how many
// were removed.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int, error) {
	var n int64
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM doc_vectors
			WHERE id IN (SELECT id FROM documents WHERE source = ?)`, source); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE source = ?`, source)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, faults.Unavailable(fmt.Errorf("vecstore: delete source %s: %w", source, err))
	}
	return int(n), nil
}

// ListAll returns up to limit documents, newest first. limit <= 0 lists all.
func (s *Store) ListAll(ctx context.Context, limit int) ([]Document, error) {
	q := `SELECT id, source, doc_id, content, metadata, created_at, updated_at
	      FROM documents ORDER BY created_at DESC, id ASC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryDocuments(ctx, q, args...)
}

// ListBySource returns the documents of source, newest first.
func (s *Store) ListBySource(ctx context.Context, source string) ([]Document, error) {
	return s.queryDocuments(ctx, `
		SELECT id, source, doc_id, content, metadata, created_at, updated_at
		FROM documents WHERE source = ? ORDER BY created_at DESC, id ASC`, source)
}

// Stats summarises the store.
type Stats struct {
	Documents    int            `json:"documents"`
	BySource     map[string]int `json:"by_source"`
	Vectors      int            `json:"vectors"`
	IndexedNodes int            `json:"indexed_nodes"`
	NeedsRebuild bool           `json:"needs_rebuild"`
	EmbedModel   string         `json:"embed_model,omitempty"`
}

// Stats returns document and index counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{BySource: map[string]int{}}
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM documents GROUP BY source`)
	if err != nil {
		return st, faults.Unavailable(fmt.Errorf("vecstore: stats: %w", err))
	}
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			rows.Close()
			return st, faults.Unavailable(fmt.Errorf("vecstore: stats: %w", err))
		}
		st.BySource[src] = n
		st.Documents += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, faults.Unavailable(fmt.Errorf("vecstore: stats: %w", err))
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_vectors`).Scan(&st.Vectors); err != nil {
		return st, faults.Unavailable(fmt.Errorf("vecstore: stats: %w", err))
	}

	s.indexMu.Lock()
	st.IndexedNodes = s.index.Count()
	st.NeedsRebuild = s.index.NeedsRebuild()
	s.indexMu.Unlock()
	if s.emb != nil {
		st.EmbedModel = s.emb.Model()
	}
	return st, nil
}

// Flatten drops nil values and JSON-encodes lists and maps so every
// metadata value is a scalar.
func Flatten(md map[string]any) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		switch val := v.(type) {
		case nil:
		case string, bool, int, int64, float64, float32, json.Number:
			out[k] = val
		case *string:
			if val != nil {
				out[k] = *val
			}
		default:
			b, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

func (s *Store) queryDocuments(ctx context.Context, q string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, faults.Unavailable(fmt.Errorf("vecstore: query: %w", err))
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, faults.Unavailable(fmt.Errorf("vecstore: scan: %w", err))
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Unavailable(fmt.Errorf("vecstore: rows: %w", err))
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (*Document, error) {
	var d Document
	var md string
	var created, updated int64
	if err := sc.Scan(&d.ID, &d.Source, &d.DocID, &d.Content, &md, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(md), &d.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", d.ID, err)
	}
	d.CreatedAt = time.UnixMilli(created).UTC()
	d.UpdatedAt = time.UnixMilli(updated).UTC()
	return &d, nil
}
