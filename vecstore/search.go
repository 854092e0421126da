package vecstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/hazyhaar/flowkeeper/embed"
	"github.com/hazyhaar/flowkeeper/faults"
)

// rrfK is the reciprocal rank fusion constant.
const rrfK = 60

// Hit is a search result.
type Hit struct {
	Document
	Score   float64  `json:"score"`
	Matched []string `json:"matched"` // "text", "vector"
}

// Search returns up to topK documents for query, fusing full-text and
// vector rankings by reciprocal rank. Without an embedder only full-text
// ranking is used.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	pool := topK * 4

	scores := map[string]float64{}
	matched := map[string][]string{}

	textIDs, err := s.searchText(ctx, query, pool)
	if err != nil {
		return nil, err
	}
	for rank, id := range textIDs {
		scores[id] += 1.0 / float64(rrfK+rank+1)
		matched[id] = append(matched[id], "text")
	}

	if s.emb != nil && strings.TrimSpace(query) != "" {
		vecIDs, err := s.searchVector(ctx, query, pool)
		if err != nil {
			return nil, err
		}
		for rank, id := range vecIDs {
			scores[id] += 1.0 / float64(rrfK+rank+1)
			matched[id] = append(matched[id], "vector")
		}
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})

	var hits []Hit
	for _, id := range ids {
		if len(hits) == topK {
			break
		}
		d, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // stale ANN node of a deleted document
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Document: *d, Score: scores[id], Matched: matched[id]})
	}
	return hits, nil
}

func (s *Store) searchText(ctx context.Context, query string, limit int) ([]string, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id
		FROM documents_fts
		JOIN documents d ON d.rowid = documents_fts.rowid
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, faults.Unavailable(fmt.Errorf("vecstore: fts: %w", err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, faults.Unavailable(fmt.Errorf("vecstore: fts scan: %w", err))
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) searchVector(ctx context.Context, query string, limit int) ([]string, error) {
	qv, err := s.emb.Embed(ctx, query)
	if err != nil {
		return nil, faults.Unavailable(fmt.Errorf("vecstore: embed query: %w", err))
	}
	if embed.Norm(qv) == 0 {
		return nil, nil
	}

	s.indexMu.Lock()
	if s.index.Count() > 0 {
		results, err := s.index.Search(qv, limit)
		s.indexMu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("vecstore: ann search: %w", err)
		}
		seen := make(map[string]bool, len(results))
		ids := make([]string, 0, len(results))
		for _, r := range results {
			id := string(r.ID)
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		return ids, nil
	}
	s.indexMu.Unlock()

	return s.scanVectors(ctx, qv, limit)
}

// scanVectors ranks every stored vector by cosine similarity.
func (s *Store) scanVectors(ctx context.Context, qv []float32, limit int) ([]string, error) {
	ids, vecs, err := s.loadVectors(ctx)
	if err != nil {
		return nil, faults.Unavailable(fmt.Errorf("vecstore: load vectors: %w", err))
	}
	type scored struct {
		id    string
		score float64
	}
	var all []scored
	for i, v := range vecs {
		if sim := embed.Cosine(qv, v); sim > 0 {
			all = append(all, scored{string(ids[i]), sim})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id < all[j].id
	})
	out := make([]string, 0, min(limit, len(all)))
	for i := 0; i < len(all) && i < limit; i++ {
		out = append(out, all[i].id)
	}
	return out, nil
}

// ftsQuery turns free text into an OR of quoted FTS5 terms so that user
// punctuation never reaches the FTS5 query parser.
func ftsQuery(q string) string {
	terms := strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := map[string]bool{}
	var parts []string
	for _, t := range terms {
		t = strings.ToLower(t)
		if seen[t] {
			continue
		}
		seen[t] = true
		parts = append(parts, `"`+t+`"`)
	}
	return strings.Join(parts, " OR ")
}
