package recorder

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/flowkeeper/sanitize"
)

func TestDecodeBinding(t *testing.T) {
	ev, err := decodeBinding(`{"type":"input","selector":"input#password","value":"hunter2","text":null,"parent_hierarchy":["form","div"],"timestamp":"2024-01-01T00:00:00Z"}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ev["text"]; ok {
		t.Fatal("null field kept")
	}
	if ev["selector"] != "input#password" || ev["value"] != "hunter2" {
		t.Fatalf("event = %v", ev)
	}

	steps, masked := sanitize.Sanitize([]sanitize.RawEvent{ev}, sanitize.Options{})
	if steps[0].Value != sanitize.RedactionMarker {
		t.Fatalf("recorded value not redacted: %v", steps[0].Value)
	}
	if _, ok := steps[0].Fields()["timestamp"]; ok {
		t.Fatal("timestamp survived sanitization")
	}
	if len(masked) != 1 || masked[0] != "input#password" {
		t.Fatalf("masked = %v", masked)
	}
}

func TestDecodeBinding_Invalid(t *testing.T) {
	for _, payload := range []string{"", "null", "[1]", "{"} {
		if _, err := decodeBinding(payload); err == nil {
			t.Errorf("decodeBinding(%q): expected error", payload)
		}
	}
}

func TestNavigationEvent(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 0, 0, 0, time.FixedZone("CET", 3600))
	ev := navigationEvent("https://example.com/a", at)
	if ev["type"] != "navigation" || ev["url"] != "https://example.com/a" {
		t.Fatalf("event = %v", ev)
	}
	if ev["timestamp"] != "2024-03-09T13:00:00Z" {
		t.Fatalf("timestamp = %v", ev["timestamp"])
	}
}

func TestEventLog_Concurrent(t *testing.T) {
	var l eventLog
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.add(sanitize.RawEvent{"type": "click"})
			}
		}()
	}
	wg.Wait()
	snap := l.snapshot()
	if len(snap) != 400 {
		t.Fatalf("got %d events, want 400", len(snap))
	}
	snap[0] = nil
	if l.snapshot()[0] == nil {
		t.Fatal("snapshot aliases the log")
	}
}

func TestCaptureScript(t *testing.T) {
	if !strings.Contains(captureJS, bindingName) {
		t.Fatal("capture script does not call the binding")
	}
	for _, ev := range []string{"'click'", "'input'", "'change'"} {
		if !strings.Contains(captureJS, ev) {
			t.Errorf("capture script does not listen for %s", ev)
		}
	}
}

// TestRecord_Browser drives a real Chrome. Set FLOWKEEPER_BROWSER_TESTS=1
// to run it.
func TestRecord_Browser(t *testing.T) {
	if os.Getenv("FLOWKEEPER_BROWSER_TESTS") == "" {
		t.Skip("FLOWKEEPER_BROWSER_TESTS not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := New(Config{Headless: true})
	events, err := rec.Record(ctx, "data:text/html,<input id=q>")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 || events[0]["type"] != "navigation" {
		t.Fatalf("events = %v", events)
	}
}
