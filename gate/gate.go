// CLAUDE:SUMMARY Ingestion gate: forwards content to the document store only when its hash changed for the key; same-key calls are serialized.
// Package gate decides whether content must be written downstream.
//
// For each request the gate computes the content hash, checks it against
// the hash store and, only when it changed, writes the document. The write
// runs inside the hash store's check-and-set transaction: a failed write
// leaves the previous hash in place and the error is returned.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/hazyhaar/flowkeeper/canonical"
)

// Status of one ingest call.
type Status string

const (
	StatusSkipped Status = "skipped"
	StatusUpdated Status = "updated"
)

// KeyMetadata is the metadata attribute carrying the gate key, so that a
// stored document can be traced back to its hash store entry.
const KeyMetadata = "gate_key"

// Hashes is the check-and-set half of the hash store.
type Hashes interface {
	CheckAndSet(ctx context.Context, key, hash, meta string, onChange func(context.Context) error) (bool, error)
}

// Store is the downstream document store.
type Store interface {
	AddDocument(ctx context.Context, source, docID, content string, md map[string]any) error
}

// Request is one unit to ingest.
type Request struct {
	// Key is the identity in the hash store and the downstream doc id.
	// Empty: the hash of the canonical form of Content.
	Key        string
	SourceType string
	Content    string
	Metadata   map[string]any
}

// Result reports what the gate did.
type Result struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Hash   string `json:"hash"`
}

// Gate is safe for concurrent use.
type Gate struct {
	hashes Hashes
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(g *Gate) { g.logger = l } }

// New returns a gate over hashes and store.
func New(hashes Hashes, store Store, opts ...Option) *Gate {
	g := &Gate{
		hashes: hashes,
		store:  store,
		logger: slog.Default(),
		locks:  make(map[string]*keyLock),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Ingest forwards req to the store if its content changed since the last
// call for the same key. Unchanged content returns StatusSkipped without
// touching the store. Every other outcome is an error.
func (g *Gate) Ingest(ctx context.Context, req Request) (Result, error) {
	if req.SourceType == "" {
		return Result{}, fmt.Errorf("gate: source type is required")
	}
	key := req.Key
	if key == "" {
		h, err := canonical.Hash(req.Content)
		if err != nil {
			return Result{}, fmt.Errorf("gate: derive key: %w", err)
		}
		key = h
	}
	hash := canonical.ComputeHash(req.Content)

	md := make(map[string]any, len(req.Metadata)+1)
	maps.Copy(md, req.Metadata)
	md[KeyMetadata] = key

	unlock := g.lock(key)
	defer unlock()

	changed, err := g.hashes.CheckAndSet(ctx, key, hash, req.SourceType, func(ctx context.Context) error {
		return g.store.AddDocument(ctx, req.SourceType, key, req.Content, md)
	})
	if err != nil {
		return Result{}, fmt.Errorf("gate: ingest %q: %w", key, err)
	}

	res := Result{ID: key, Status: StatusSkipped, Hash: hash}
	if changed {
		res.Status = StatusUpdated
		g.logger.Info("gate: stored", "key", key, "source", req.SourceType, "hash", hash[:12])
	} else {
		g.logger.Debug("gate: skipped unchanged", "key", key)
	}
	return res, nil
}

func (g *Gate) lock(key string) func() {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &keyLock{}
		g.locks[key] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, key)
		}
		g.mu.Unlock()
	}
}
