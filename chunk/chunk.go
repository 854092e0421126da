// CLAUDE:SUMMARY Word-window chunker (400 words, 50 overlap by default) for documents and crawled pages.
// Package chunk splits extracted text into overlapping word windows before
// ingestion, so that each stored document stays small enough to embed and
// to read back as context.
//
// Text is split on whitespace. Windows of MaxWords words advance by
// MaxWords-OverlapWords; the last window always ends on the last word.
// Whitespace inside a chunk is normalised to single spaces.
package chunk

import "strings"

// Defaults.
const (
	DefaultMaxWords     = 400
	DefaultOverlapWords = 50
)

// Options configures Split.
type Options struct {
	// MaxWords per chunk. Default: 400.
	MaxWords int `json:"max_words" yaml:"max_words"`
	// OverlapWords shared by consecutive chunks. Default: 50; negative
	// disables overlap. Values at or above MaxWords are clamped to MaxWords/2.
	OverlapWords int `json:"overlap_words" yaml:"overlap_words"`
}

func (o *Options) defaults() {
	if o.MaxWords <= 0 {
		o.MaxWords = DefaultMaxWords
	}
	if o.OverlapWords < 0 {
		o.OverlapWords = 0
	} else if o.OverlapWords == 0 {
		o.OverlapWords = DefaultOverlapWords
	}
	if o.OverlapWords >= o.MaxWords {
		o.OverlapWords = o.MaxWords / 2
	}
}

// Chunk is one window of text.
type Chunk struct {
	Index       int    // 0-based position
	Text        string // words joined by single spaces
	WordCount   int
	OverlapPrev int // words shared with the previous chunk
}

// Split divides text into overlapping chunks. Blank text yields nil.
func Split(text string, opts Options) []Chunk {
	opts.defaults()

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= opts.MaxWords {
		return []Chunk{{Text: strings.Join(words, " "), WordCount: len(words)}}
	}

	var chunks []Chunk
	start := 0
	for {
		end := min(start+opts.MaxWords, len(words))
		overlap := 0
		if len(chunks) > 0 {
			overlap = opts.OverlapWords
		}
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			Text:        strings.Join(words[start:end], " "),
			WordCount:   end - start,
			OverlapPrev: overlap,
		})
		if end == len(words) {
			return chunks
		}
		start = end - opts.OverlapWords
	}
}

// Texts returns only the chunk texts of Split.
func Texts(text string, opts Options) []string {
	chunks := Split(text, opts)
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

// CountWords returns the whitespace-separated word count of text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
