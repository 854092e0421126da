package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultHashingDimension is the vector size of NewHashing(0).
const DefaultHashingDimension = 256

// Hashing embeds text by hashing lowercase word tokens into a fixed number
// of signed buckets and L2-normalising the result. Texts sharing words get
// a positive cosine similarity.
type Hashing struct {
	dim int
}

// NewHashing returns a Hashing embedder of dimension dim (default 256).
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = DefaultHashingDimension
	}
	return &Hashing{dim: dim}
}

func (h *Hashing) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for _, tok := range tokens(text) {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		bucket := int(sum % uint64(h.dim))
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	normalize(vec)
	return vec, nil
}

func (h *Hashing) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *Hashing) Dimension() int { return h.dim }
func (h *Hashing) Model() string  { return "local-hashing" }

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	n := Norm(vec)
	if n == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / n)
	}
}

var _ Embedder = (*Hashing)(nil)
