package vecstore

import (
	"context"
	"fmt"

	"github.com/hazyhaar/flowkeeper/embed"
)

// indexVector adds vec to the ANN index, building the index from every
// stored vector once MinIndexSize is reached.
func (s *Store) indexVector(ctx context.Context, id string, vec []float32) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if s.index.Count() > 0 {
		return s.index.Insert([][]float32{vec}, [][]byte{[]byte(id)})
	}

	ids, vecs, err := s.loadVectors(ctx)
	if err != nil {
		return err
	}
	if len(vecs) < s.minIndex {
		return nil
	}
	if err := s.index.Build(ctx, &sliceIter{ids: ids, vecs: vecs}); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	s.logger.Info("vecstore: ann index built", "vectors", len(vecs))
	return nil
}

func (s *Store) loadVectors(ctx context.Context) ([][]byte, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, vector FROM doc_vectors ORDER BY id`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var ids [][]byte
	var vecs [][]float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, nil, err
		}
		ids = append(ids, []byte(id))
		vecs = append(vecs, embed.Deserialize(blob))
	}
	return ids, vecs, rows.Err()
}

// sliceIter feeds horosvec.Index.Build.
type sliceIter struct {
	ids  [][]byte
	vecs [][]float32
	pos  int
}

func (it *sliceIter) Next() ([]byte, []float32, bool) {
	if it.pos >= len(it.vecs) {
		return nil, nil, false
	}
	id, vec := it.ids[it.pos], it.vecs[it.pos]
	it.pos++
	return id, vec, true
}

func (it *sliceIter) Reset() error {
	it.pos = 0
	return nil
}
