// CLAUDE:SUMMARY Artifact assembler: sanitize -> canonicalize -> hash -> stable doc id -> metadata, with no store side effects.
// Package artifact turns recorded events into an ingest-ready unit: the
// sanitized artifact, its canonical form and hash, a stable document id and
// the metadata record.
package artifact

import (
	"time"

	"github.com/hazyhaar/flowkeeper/canonical"
	"github.com/hazyhaar/flowkeeper/idgen"
	"github.com/hazyhaar/flowkeeper/metadata"
	"github.com/hazyhaar/flowkeeper/sanitize"
)

// Defaults applied by Prepare when Options leaves them empty.
const (
	DefaultSourceType = "workflow_recorder"
	DefaultOrigin     = "cli_user"
)

// Artifact is a recorded flow after sanitization. Its identity is derived
// from its canonical form.
type Artifact struct {
	FlowName *string          `json:"flow_name"`
	Steps    []sanitize.Event `json:"steps"`
	URL      *string          `json:"url"`
	Meta     Meta             `json:"meta"`
}

// Meta is the artifact's embedded provenance.
type Meta struct {
	RecordedBy *string `json:"recorded_by"`
}

// Options parameterise Prepare.
type Options struct {
	SourceType      string
	Origin          string
	FlowName        string
	User            string
	JiraID          string
	Project         string
	CustomSensitive []string
	Mode            sanitize.Mode
	Version         int
	Notes           string
	Extra           map[string]string
}

// Prepared is the output of Prepare.
type Prepared struct {
	Artifact  Artifact
	Metadata  metadata.Metadata
	DocID     string
	Canonical string
	Hash      string
}

// Assembler runs the preparation pipeline. Zero value is ready to use.
type Assembler struct {
	// Clock stamps metadata. Default: time.Now.
	Clock func() time.Time
	// Suffix generates the id suffix of unnamed flows. Default: idgen.Hex(8).
	Suffix idgen.Generator
}

// Prepare sanitizes events, canonicalizes and hashes the resulting
// artifact, derives its StableDocID and builds its metadata. It has no side
// effects; storing is the gate's job.
func (a Assembler) Prepare(events []sanitize.RawEvent, opts Options) (Prepared, error) {
	steps, masked := sanitize.Sanitize(events, sanitize.Options{
		Keywords: opts.CustomSensitive,
		Mode:     opts.Mode,
	})

	art := Artifact{
		FlowName: optional(opts.FlowName),
		Steps:    steps,
		Meta:     Meta{RecordedBy: optional(opts.User)},
	}

	canon, err := canonical.Canonicalize(art)
	if err != nil {
		return Prepared{}, err
	}
	hash := canonical.ComputeHash(canon)

	suffix := a.Suffix
	if suffix == nil {
		suffix = idgen.Hex(8)
	}
	docID := StableDocID(opts.FlowName, hash, suffix)

	sourceType := opts.SourceType
	if sourceType == "" {
		sourceType = DefaultSourceType
	}
	origin := opts.Origin
	if origin == "" {
		origin = DefaultOrigin
	}
	md, err := metadata.Builder{Clock: a.Clock}.Build(metadata.Params{
		SourceType: sourceType,
		Origin:     origin,
		FlowName:   opts.FlowName,
		User:       opts.User,
		JiraID:     opts.JiraID,
		Project:    opts.Project,
		Hash:       hash,
		Masked:     masked,
		Version:    opts.Version,
		Notes:      opts.Notes,
		Extra:      opts.Extra,
	})
	if err != nil {
		return Prepared{}, err
	}

	return Prepared{
		Artifact:  art,
		Metadata:  md.WithID(docID),
		DocID:     docID,
		Canonical: canon,
		Hash:      hash,
	}, nil
}

// Prepare runs the default Assembler.
func Prepare(events []sanitize.RawEvent, opts Options) (Prepared, error) {
	return Assembler{}.Prepare(events, opts)
}

// StableDocID is "flow::<name>::<hash[:8]>", or "flow::unnamed::<suffix()>"
// when name is empty.
func StableDocID(name, hash string, suffix idgen.Generator) string {
	if name == "" {
		return "flow::unnamed::" + suffix()
	}
	short := hash
	if len(short) > 8 {
		short = short[:8]
	}
	return "flow::" + name + "::" + short
}

// MaskedSelectors returns the audit set recorded in p's metadata.
func (p Prepared) MaskedSelectors() []string {
	return p.Metadata.SensitiveFieldsMasked
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
