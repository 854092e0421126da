// CLAUDE:SUMMARY Fixed-shape ingest metadata record (provenance, redaction audit, version) built with an injectable clock and flattened for storage.
// Package metadata builds the provenance record attached to every ingested
// artifact.
package metadata

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hazyhaar/flowkeeper/faults"
)

// TimeFormat is the UTC timestamp layout of Metadata.Timestamp.
const TimeFormat = "2006-01-02T15:04:05Z"

// Metadata is built once per ingest call and never mutated afterwards.
// Optional provenance fields are nil when unknown and encode as JSON null.
type Metadata struct {
	ID                    string   `json:"id"`
	SourceType            string   `json:"source_type"`
	Origin                string   `json:"origin"`
	JiraID                *string  `json:"jira_id"`
	Project               *string  `json:"project"`
	FlowName              *string  `json:"flow_name"`
	User                  *string  `json:"user"`
	Timestamp             string   `json:"timestamp"`
	Hash                  *string  `json:"hash"`
	Redaction             bool     `json:"redaction"`
	SensitiveFieldsMasked []string `json:"sensitive_fields_masked"`
	Version               int      `json:"version"`
	Notes                 string   `json:"notes"`

	// Extra carries loader-specific attributes (issue type, page url, chunk
	// index). Keys never shadow the fixed fields when flattened.
	Extra map[string]string `json:"extra,omitempty"`
}

// Params are the inputs of Build. Empty strings mean "unknown".
type Params struct {
	SourceType string
	Origin     string
	FlowName   string
	User       string
	JiraID     string
	Project    string
	Hash       string
	Masked     []string
	Version    int // 0 means 1
	Notes      string
	Extra      map[string]string
}

// Builder builds Metadata. A nil Clock uses time.Now.
type Builder struct {
	Clock func() time.Time
}

// Build validates p and returns a new record. SourceType and Origin are
// required; Version must not be negative.
func (b Builder) Build(p Params) (Metadata, error) {
	if p.SourceType == "" {
		return Metadata{}, faults.Malformedf("metadata: source_type is required")
	}
	if p.Origin == "" {
		return Metadata{}, faults.Malformedf("metadata: origin is required")
	}
	if p.Version < 0 {
		return Metadata{}, faults.Malformedf("metadata: version %d is negative", p.Version)
	}
	version := p.Version
	if version == 0 {
		version = 1
	}

	clock := b.Clock
	if clock == nil {
		clock = time.Now
	}

	masked := make([]string, len(p.Masked))
	copy(masked, p.Masked)
	sort.Strings(masked)

	var extra map[string]string
	if len(p.Extra) > 0 {
		extra = make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			extra[k] = v
		}
	}

	return Metadata{
		SourceType:            p.SourceType,
		Origin:                p.Origin,
		JiraID:                optional(p.JiraID),
		Project:               optional(p.Project),
		FlowName:              optional(p.FlowName),
		User:                  optional(p.User),
		Timestamp:             clock().UTC().Format(TimeFormat),
		Hash:                  optional(p.Hash),
		Redaction:             len(masked) > 0,
		SensitiveFieldsMasked: masked,
		Version:               version,
		Notes:                 p.Notes,
		Extra:                 extra,
	}, nil
}

// Build uses the wall clock.
func Build(p Params) (Metadata, error) {
	return Builder{}.Build(p)
}

// WithID returns a copy of m carrying id.
func (m Metadata) WithID(id string) Metadata {
	m.SensitiveFieldsMasked = append([]string{}, m.SensitiveFieldsMasked...)
	m.ID = id
	return m
}

// Flatten renders m as scalar attributes for the document store: nil
// fields are dropped and the masked list is JSON-encoded.
func (m Metadata) Flatten() map[string]any {
	out := map[string]any{
		"id":          m.ID,
		"source_type": m.SourceType,
		"origin":      m.Origin,
		"timestamp":   m.Timestamp,
		"redaction":   m.Redaction,
		"version":     m.Version,
		"notes":       m.Notes,
	}
	for k, p := range map[string]*string{
		"jira_id":   m.JiraID,
		"project":   m.Project,
		"flow_name": m.FlowName,
		"user":      m.User,
		"hash":      m.Hash,
	} {
		if p != nil {
			out[k] = *p
		}
	}
	masked := m.SensitiveFieldsMasked
	if masked == nil {
		masked = []string{}
	}
	enc, _ := json.Marshal(masked)
	out["sensitive_fields_masked"] = string(enc)

	for k, v := range m.Extra {
		if fixedKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// String is a short log form.
func (m Metadata) String() string {
	hash := ""
	if m.Hash != nil {
		hash = *m.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
	}
	return fmt.Sprintf("%s[%s/%s v%d %s]", m.ID, m.SourceType, m.Origin, m.Version, hash)
}

var fixedKeys = map[string]bool{
	"id": true, "source_type": true, "origin": true, "jira_id": true,
	"project": true, "flow_name": true, "user": true, "timestamp": true,
	"hash": true, "redaction": true, "sensitive_fields_masked": true,
	"version": true, "notes": true,
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
