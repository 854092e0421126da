package sources

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hazyhaar/flowkeeper/canonical"
	"github.com/hazyhaar/flowkeeper/faults"
	"github.com/hazyhaar/flowkeeper/schema"
)

// UIStep is one step of a UI-crawl log.
type UIStep struct {
	File  string
	Index int
	Step  map[string]any
	// Canonical is the canonical form of Step.
	Canonical string
}

// Key is "<file>_<index>".
func (s UIStep) Key() string {
	return fmt.Sprintf("%s_%d", s.File, s.Index)
}

// Content is "UI Step <index>: <canonical step>".
func (s UIStep) Content() string {
	return fmt.Sprintf("UI Step %d: %s", s.Index, s.Canonical)
}

// LoadUICrawl reads a `{"steps": [...]}` log. The file must satisfy the
// ui_crawl schema; a malformed log is rejected as a whole.
func LoadUICrawl(path string) ([]UIStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sources: ui crawl: %w", err)
	}
	if err := schema.Validate(schema.UICrawl, data); err != nil {
		return nil, fmt.Errorf("sources: ui crawl %s: %w", path, err)
	}

	var log struct {
		Steps []map[string]any `json:"steps"`
	}
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, faults.Malformed(fmt.Errorf("sources: ui crawl %s: %w", path, err))
	}

	steps := make([]UIStep, 0, len(log.Steps))
	for i, step := range log.Steps {
		canon, err := canonical.Canonicalize(step)
		if err != nil {
			return nil, fmt.Errorf("sources: ui crawl %s step %d: %w", path, i, err)
		}
		steps = append(steps, UIStep{File: path, Index: i, Step: step, Canonical: canon})
	}
	return steps, nil
}
