// CLAUDE:SUMMARY Embedded JSON Schemas (flow file, event list, UI-crawl log) compiled once and applied with kaptinlin/jsonschema.
// Package schema validates the JSON documents flowkeeper reads from disk
// or the network before they reach the pipeline.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/hazyhaar/flowkeeper/faults"
)

//go:embed schemas/*.schema.json
var files embed.FS

// Name identifies an embedded schema.
type Name string

const (
	FlowFile Name = "flow_file"
	Events   Name = "events"
	UICrawl  Name = "ui_crawl"
)

var (
	mu       sync.Mutex
	compiled = map[Name]*jsonschema.Schema{}
)

func load(name Name) (*jsonschema.Schema, error) {
	mu.Lock()
	defer mu.Unlock()
	if s, ok := compiled[name]; ok {
		return s, nil
	}
	data, err := files.ReadFile("schemas/" + string(name) + ".schema.json")
	if err != nil {
		return nil, fmt.Errorf("schema: unknown schema %q", name)
	}
	s, err := jsonschema.NewCompiler().Compile(data)
	if err != nil {
		return nil, fmt.Errorf("schema: compile %s: %w", name, err)
	}
	compiled[name] = s
	return s, nil
}

// Validate checks data against the named schema. Invalid JSON and schema
// violations are faults.ErrMalformedInput.
func Validate(name Name, data []byte) error {
	if !json.Valid(data) {
		return faults.Malformedf("schema: %s: invalid JSON", name)
	}
	s, err := load(name)
	if err != nil {
		return err
	}
	result := s.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors))
	for field, e := range result.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %v", field, e))
	}
	sort.Strings(msgs)
	return faults.Malformedf("schema: %s: %s", name, strings.Join(msgs, "; "))
}

// Source returns the raw schema document, for clients that validate on
// their side.
func Source(name Name) ([]byte, error) {
	return files.ReadFile("schemas/" + string(name) + ".schema.json")
}
