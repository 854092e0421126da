package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/flowkeeper/canonical"
	"github.com/hazyhaar/flowkeeper/sanitize"
)

// FlowFile is the persisted JSON form of a flow. One file per flow name,
// overwritten on every ingest.
type FlowFile struct {
	FlowName string           `json:"flow_name"`
	Source   string           `json:"source"`
	Steps    []sanitize.Event `json:"steps"`
}

// FlowFilePath returns the deterministic path of name's flow file in dir.
func FlowFilePath(dir, name string) string {
	return filepath.Join(dir, SafeFileName(name)+".json")
}

// SafeFileName maps a flow name onto [A-Za-z0-9._-]. When a rune had to be
// replaced, the first 8 hex digits of the name's SHA-256 are appended so
// that "a/b" and "a_b" get distinct files. Empty or dot-only names become
// "unnamed".
func SafeFileName(name string) string {
	var b strings.Builder
	replaced := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
			replaced = true
		}
	}
	s := b.String()
	if strings.Trim(s, ".") == "" {
		return "unnamed"
	}
	if replaced {
		s += "-" + canonical.ComputeHash(name)[:8]
	}
	return s
}

// WriteFlowFile writes f to FlowFilePath(dir, f.FlowName) through a
// temporary file and rename.
func WriteFlowFile(dir string, f FlowFile) (string, error) {
	if f.Steps == nil {
		f.Steps = []sanitize.Event{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return "", fmt.Errorf("artifact: encode flow file: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: mkdir %s: %w", dir, err)
	}
	path := FlowFilePath(dir, f.FlowName)
	tmp, err := os.CreateTemp(dir, ".flow-*.json")
	if err != nil {
		return "", fmt.Errorf("artifact: create temp: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("artifact: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("artifact: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("artifact: rename %s: %w", path, err)
	}
	return path, nil
}

// ReadFlowFile loads a flow file.
func ReadFlowFile(path string) (FlowFile, error) {
	var f FlowFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("artifact: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("artifact: decode %s: %w", path, err)
	}
	return f, nil
}
