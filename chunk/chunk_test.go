package chunk

import (
	"fmt"
	"strings"
	"testing"
)

func numbered(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestSplit_ShortText(t *testing.T) {
	chunks := Split("Hello   world\n this is short.", Options{})
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "Hello world this is short." {
		t.Errorf("text: got %q", chunks[0].Text)
	}
	if chunks[0].OverlapPrev != 0 || chunks[0].WordCount != 5 {
		t.Errorf("chunk: %+v", chunks[0])
	}
}

func TestSplit_Empty(t *testing.T) {
	if chunks := Split(" \n\t", Options{}); chunks != nil {
		t.Errorf("got %v, want nil", chunks)
	}
}

func TestSplit_Defaults(t *testing.T) {
	// 1000 words, window 400, stride 350: [0,400) [350,750) [700,1000).
	chunks := Split(numbered(1000), Options{})
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	wantStarts := []string{"w0", "w350", "w700"}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk[%d]: index %d", i, c.Index)
		}
		if first := strings.Fields(c.Text)[0]; first != wantStarts[i] {
			t.Errorf("chunk[%d]: starts at %s, want %s", i, first, wantStarts[i])
		}
	}
	if chunks[2].WordCount != 300 {
		t.Errorf("last chunk: %d words, want 300", chunks[2].WordCount)
	}
	if chunks[1].OverlapPrev != 50 {
		t.Errorf("overlap: got %d, want 50", chunks[1].OverlapPrev)
	}
	if !strings.HasSuffix(chunks[2].Text, "w999") {
		t.Error("last chunk must end on the last word")
	}
}

func TestSplit_ExactWindow(t *testing.T) {
	if chunks := Split(numbered(400), Options{}); len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks := Split(numbered(401), Options{}); len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
}

func TestSplit_OverlapClamped(t *testing.T) {
	chunks := Split(numbered(30), Options{MaxWords: 10, OverlapWords: 10})
	for i := 1; i < len(chunks); i++ {
		if chunks[i].OverlapPrev != 5 {
			t.Fatalf("chunk[%d]: overlap %d, want 5", i, chunks[i].OverlapPrev)
		}
	}
	if len(chunks) != 5 {
		t.Fatalf("got %d chunks, want 5", len(chunks))
	}
}

func TestTextsAndCount(t *testing.T) {
	texts := Texts(numbered(12), Options{MaxWords: 5, OverlapWords: 1})
	// stride 4: [0,5) [4,9) [8,12)
	if len(texts) != 3 || !strings.HasPrefix(texts[2], "w8 ") {
		t.Fatalf("texts = %q", texts)
	}
	if CountWords(" a b\nc ") != 3 {
		t.Fatal("CountWords")
	}
}
