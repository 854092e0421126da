package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hazyhaar/flowkeeper/artifact"
	"github.com/hazyhaar/flowkeeper/faults"
	"github.com/hazyhaar/flowkeeper/gate"
	"github.com/hazyhaar/flowkeeper/sanitize"
	"github.com/hazyhaar/flowkeeper/schema"
	"github.com/hazyhaar/flowkeeper/sources"
	"github.com/hazyhaar/flowkeeper/vecstore"
)

// Flow sources written to the persisted flow file.
const (
	SourceRecorder   = "recorder"
	SourcePlaywright = "playwright"
	SourceAPI        = "api"
)

// FlowRequest is one recorded flow to ingest.
type FlowRequest struct {
	FlowName string              `json:"flow_name"`
	Events   []sanitize.RawEvent `json:"events"`
	User     string              `json:"user,omitempty"`
	JiraID   string              `json:"jira_id,omitempty"`
	Project  string              `json:"project,omitempty"`
	// Source is written to the flow file. Default: "recorder".
	Source string `json:"source,omitempty"`
	// SourceType defaults to "workflow_recorder".
	SourceType string `json:"source_type,omitempty"`
	// Origin defaults to the configured origin.
	Origin          string            `json:"origin,omitempty"`
	Version         int               `json:"version,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	CustomSensitive []string          `json:"custom_sensitive,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// Outcome reports one ingested flow.
type Outcome struct {
	ID       string      `json:"id"`
	StoreID  string      `json:"store_id"`
	Status   gate.Status `json:"status"`
	Hash     string      `json:"hash"`
	FlowFile string      `json:"flow_file"`
	Masked   []string    `json:"masked"`
}

// IngestFlow sanitizes and canonicalizes req.Events, writes the flow file
// and hands the canonical form to the gate under the flow's stable id.
func (s *Service) IngestFlow(ctx context.Context, req FlowRequest) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	p, err := s.prepare(req)
	if err != nil {
		return Outcome{}, err
	}

	source := req.Source
	if source == "" {
		source = SourceRecorder
	}
	path, err := artifact.WriteFlowFile(s.cfg.FlowsDir, artifact.FlowFile{
		FlowName: req.FlowName,
		Source:   source,
		Steps:    p.Artifact.Steps,
	})
	if err != nil {
		return Outcome{}, err
	}

	res, err := s.gate.Ingest(ctx, gate.Request{
		Key:        p.DocID,
		SourceType: p.Metadata.SourceType,
		Content:    p.Canonical,
		Metadata:   p.Metadata.Flatten(),
	})
	if err != nil {
		return Outcome{}, err
	}

	masked := p.MaskedSelectors()
	if masked == nil {
		masked = []string{}
	}
	s.logger.Info("ingest: flow",
		"id", res.ID, "status", res.Status, "steps", len(p.Artifact.Steps), "masked", len(masked))
	return Outcome{
		ID:       res.ID,
		StoreID:  vecstore.DocumentID(p.Metadata.SourceType, res.ID),
		Status:   res.Status,
		Hash:     res.Hash,
		FlowFile: path,
		Masked:   masked,
	}, nil
}

func (s *Service) prepare(req FlowRequest) (artifact.Prepared, error) {
	origin := req.Origin
	if origin == "" {
		origin = s.cfg.Origin
	}
	user := req.User
	if user == "" {
		user = s.cfg.User
	}
	keywords := append(append([]string{}, s.cfg.SensitiveKeywords...), req.CustomSensitive...)
	return s.assembler.Prepare(req.Events, artifact.Options{
		SourceType:      req.SourceType,
		Origin:          origin,
		FlowName:        req.FlowName,
		User:            user,
		JiraID:          req.JiraID,
		Project:         req.Project,
		CustomSensitive: keywords,
		Mode:            s.cfg.Mode(),
		Version:         req.Version,
		Notes:           req.Notes,
		Extra:           req.Extra,
	})
}

// PlaywrightRequest is Playwright TypeScript to ingest as a flow.
type PlaywrightRequest struct {
	Code     string `json:"code"`
	FlowName string `json:"flow_name"`
	User     string `json:"user,omitempty"`
	JiraID   string `json:"jira_id,omitempty"`
	Project  string `json:"project,omitempty"`
}

// IngestPlaywright parses goto, fill, click and selectOption statements
// and ingests them as a "ui_flow". Code without any of them is rejected.
func (s *Service) IngestPlaywright(ctx context.Context, req PlaywrightRequest) (Outcome, error) {
	steps := sources.ParsePlaywright(req.Code)
	if len(steps) == 0 {
		return Outcome{}, faults.Malformedf("ingest: playwright: no goto, fill, click or selectOption step found")
	}
	return s.IngestFlow(ctx, FlowRequest{
		FlowName:   req.FlowName,
		Events:     steps,
		User:       req.User,
		JiraID:     req.JiraID,
		Project:    req.Project,
		Source:     SourcePlaywright,
		SourceType: "ui_flow",
		Extra:      map[string]string{"steps_count": strconv.Itoa(len(steps))},
	})
}

// Record opens url in a browser and returns the events captured until ctx
// is done. The caller ingests them with IngestFlow, typically under a
// fresh context since ctx ending is how a recording stops.
func (s *Service) Record(ctx context.Context, url string) ([]sanitize.RawEvent, error) {
	events, err := s.recorder.Record(ctx, url)
	s.logger.Info("ingest: recorded", "url", url, "events", len(events))
	return events, err
}

// DecodeEvents reads recorded events from either a JSON array of events or
// a persisted flow file. The flow name found in a flow file is returned.
func DecodeEvents(data []byte) ([]sanitize.RawEvent, string, error) {
	if schema.Validate(schema.Events, data) == nil {
		events, err := sanitize.ParseEvents(data)
		if err != nil {
			return nil, "", faults.Malformed(err)
		}
		return events, "", nil
	}
	if err := schema.Validate(schema.FlowFile, data); err != nil {
		return nil, "", err
	}
	var f struct {
		FlowName *string             `json:"flow_name"`
		Steps    []sanitize.RawEvent `json:"steps"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", faults.Malformed(fmt.Errorf("ingest: flow file: %w", err))
	}
	name := ""
	if f.FlowName != nil {
		name = *f.FlowName
	}
	return f.Steps, name, nil
}
