// CLAUDE:SUMMARY Ingest service: owns the hash store, the document store and the gate; exposes flow/loader ingestion plus list, search, stats and delete.
// Package ingest wires the flowkeeper pipeline into one service.
//
// Every write goes through the gate: content is stored only when its
// canonical hash changed for its key, and the store write commits together
// with the new hash. Deleting a document also forgets its hash so that the
// same content can be ingested again.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/flowkeeper/artifact"
	"github.com/hazyhaar/flowkeeper/docpipe"
	"github.com/hazyhaar/flowkeeper/embed"
	"github.com/hazyhaar/flowkeeper/gate"
	"github.com/hazyhaar/flowkeeper/hashstore"
	"github.com/hazyhaar/flowkeeper/idgen"
	"github.com/hazyhaar/flowkeeper/recorder"
	"github.com/hazyhaar/flowkeeper/vecstore"
)

// Service is safe for concurrent use.
type Service struct {
	cfg       Config
	hashes    *hashstore.Store
	store     *vecstore.Store
	gate      *gate.Gate
	assembler artifact.Assembler
	docs      *docpipe.Pipeline
	recorder  *recorder.Recorder
	runIDs    idgen.Generator
	logger    *slog.Logger
	owned     bool
}

// Open opens the hash store and the document store named by cfg. They are
// separate databases: the gate writes documents while the hash store
// transaction is open.
func Open(cfg Config) (*Service, error) {
	cfg.defaults()
	hashes, err := hashstore.Open(cfg.HashDB)
	if err != nil {
		return nil, err
	}
	store, err := vecstore.Open(vecstore.Config{
		DBPath:       cfg.VectorDB,
		Embedder:     embed.New(cfg.Embed),
		MinIndexSize: cfg.Index.MinIndexSize,
		CacheSize:    cfg.Index.CacheSize,
		Clock:        cfg.Clock,
		Logger:       cfg.Logger,
	})
	if err != nil {
		hashes.Close()
		return nil, err
	}
	s := New(cfg, hashes, store)
	s.owned = true
	cfg.Logger.Info("ingest: opened",
		"hash_db", cfg.HashDB, "vector_db", cfg.VectorDB, "flows_dir", cfg.FlowsDir)
	return s, nil
}

// New builds a Service over already open stores. The caller keeps
// ownership of them.
func New(cfg Config, hashes *hashstore.Store, store *vecstore.Store) *Service {
	cfg.defaults()
	return &Service{
		cfg:       cfg,
		hashes:    hashes,
		store:     store,
		gate:      gate.New(hashes, store, gate.WithLogger(cfg.Logger)),
		assembler: artifact.Assembler{Clock: cfg.Clock},
		docs:      docpipe.New(cfg.Docs),
		recorder:  recorder.New(cfg.Recorder),
		runIDs:    idgen.UUIDv7(),
		logger:    cfg.Logger,
	}
}

// Close closes the stores opened by Open.
func (s *Service) Close() error {
	if !s.owned {
		return nil
	}
	return errors.Join(s.store.Close(), s.hashes.Close())
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// List returns up to limit stored documents, newest first. limit <= 0
// returns all of them.
func (s *Service) List(ctx context.Context, limit int) ([]vecstore.Document, error) {
	return s.store.ListAll(ctx, limit)
}

// Get returns one stored document by store id ("<source>-<doc id>").
func (s *Service) Get(ctx context.Context, id string) (*vecstore.Document, error) {
	return s.store.Get(ctx, id)
}

// Search runs a hybrid search over stored documents.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]vecstore.Hit, error) {
	return s.store.Search(ctx, query, topK)
}

// Stats combines document store and hash store counts.
type Stats struct {
	vecstore.Stats
	TrackedKeys int `json:"tracked_keys"`
}

// Stats returns store counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	n, err := s.hashes.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Stats: st, TrackedKeys: n}, nil
}

// Delete removes the document with store id id and forgets its gate key.
// The key is forgotten first: if the document delete then fails, the next
// ingest of the same content rewrites it instead of skipping it.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("ingest: delete %q: %w", id, err)
	}
	if key := gateKey(doc); key != "" {
		if err := s.hashes.Forget(ctx, key); err != nil {
			return err
		}
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.logger.Info("ingest: deleted", "id", id)
	return nil
}

// DeleteBySource removes every document of source and forgets their gate
// keys. It returns the number of documents removed.
func (s *Service) DeleteBySource(ctx context.Context, source string) (int, error) {
	docs, err := s.store.ListBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	for i := range docs {
		if key := gateKey(&docs[i]); key != "" {
			if err := s.hashes.Forget(ctx, key); err != nil {
				return 0, err
			}
		}
	}
	n, err := s.store.DeleteBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	s.logger.Info("ingest: deleted source", "source", source, "documents", n)
	return n, nil
}

func gateKey(doc *vecstore.Document) string {
	key, _ := doc.Metadata[gate.KeyMetadata].(string)
	if key == "" {
		key = doc.DocID
	}
	return key
}
