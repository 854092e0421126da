package ingest

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/hazyhaar/flowkeeper/canonical"
	"github.com/hazyhaar/flowkeeper/faults"
	"github.com/hazyhaar/flowkeeper/gate"
	"github.com/hazyhaar/flowkeeper/metadata"
	"github.com/hazyhaar/flowkeeper/sanitize"
	"github.com/hazyhaar/flowkeeper/sources"
)

// Source types of the loaders.
const (
	TypeDocument = "document"
	TypeWebsite  = "website"
	TypeJira     = "jira"
	TypeUICrawl  = "ui_crawl"
)

// BatchReport summarises one loader run.
type BatchReport struct {
	RunID    string                `json:"run_id"`
	Source   string                `json:"source"`
	Results  []gate.Result         `json:"results"`
	Updated  int                   `json:"updated"`
	Skipped  int                   `json:"skipped"`
	Warnings []faults.ParseWarning `json:"warnings,omitempty"`
}

func (s *Service) newReport(source string) *BatchReport {
	return &BatchReport{RunID: s.runIDs(), Source: source, Results: []gate.Result{}}
}

func (r *BatchReport) add(res gate.Result) {
	r.Results = append(r.Results, res)
	if res.Status == gate.StatusUpdated {
		r.Updated++
	} else {
		r.Skipped++
	}
}

func (s *Service) finish(r *BatchReport, err error) (BatchReport, error) {
	s.logger.Info("ingest: batch",
		"run_id", r.RunID, "source", r.Source,
		"updated", r.Updated, "skipped", r.Skipped, "warnings", len(r.Warnings))
	return *r, err
}

// IngestDocuments extracts, chunks and ingests every supported file under
// path. Each chunk becomes a one-step artifact named "<file>::chunk_<j>".
// Files that cannot be read are reported as warnings.
func (s *Service) IngestDocuments(ctx context.Context, path string) (BatchReport, error) {
	report := s.newReport(TypeDocument)
	chunks, warnings, err := sources.Files{
		Pipeline: s.docs,
		Chunk:    s.cfg.Chunk,
		Logger:   s.logger,
	}.Load(ctx, path)
	report.Warnings = warnings
	if err != nil {
		return s.finish(report, err)
	}

	for _, c := range chunks {
		p, err := s.prepare(FlowRequest{
			FlowName:   c.FlowName(),
			SourceType: TypeDocument,
			Events: []sanitize.RawEvent{{
				"type": "document",
				"url":  c.Path,
				"text": c.Text,
				"name": c.StepName(),
			}},
			Extra: map[string]string{
				"file":  filepath.Base(c.Path),
				"title": c.Title,
				"page":  strconv.Itoa(c.Page),
				"chunk": strconv.Itoa(c.Chunk),
			},
		})
		if err != nil {
			return s.finish(report, err)
		}
		res, err := s.gate.Ingest(ctx, gate.Request{
			Key:        p.DocID,
			SourceType: TypeDocument,
			Content:    p.Canonical,
			Metadata:   p.Metadata.Flatten(),
		})
		if err != nil {
			return s.finish(report, err)
		}
		report.add(res)
	}
	return s.finish(report, nil)
}

// WebRequest selects the site to crawl. Zero Depth follows no links; zero
// MaxPages uses the configured limit.
type WebRequest struct {
	URL      string `json:"url"`
	Depth    int    `json:"depth"`
	MaxPages int    `json:"max_pages"`
}

// IngestWebSite crawls req.URL breadth-first on its host and ingests every
// page chunk under "<page url>::chunk_<i>". Pages that fail are warnings.
func (s *Service) IngestWebSite(ctx context.Context, req WebRequest) (BatchReport, error) {
	report := s.newReport(TypeWebsite)
	cfg := s.cfg.Crawl
	cfg.Depth = req.Depth
	if req.MaxPages > 0 {
		cfg.MaxPages = req.MaxPages
	}
	chunks, warnings, err := sources.NewCrawler(cfg).Crawl(ctx, req.URL)
	report.Warnings = warnings
	if err != nil {
		return s.finish(report, err)
	}

	for _, c := range chunks {
		res, err := s.ingestText(ctx, c.Key(), c.Text, metadata.Params{
			SourceType: TypeWebsite,
			FlowName:   c.Title,
			Extra: map[string]string{
				"url":   c.URL,
				"title": c.Title,
				"depth": strconv.Itoa(c.Depth),
				"chunk": strconv.Itoa(c.Index),
			},
		})
		if err != nil {
			return s.finish(report, err)
		}
		report.add(res)
	}
	return s.finish(report, nil)
}

// IngestJira ingests every issue matching jql under its issue key.
func (s *Service) IngestJira(ctx context.Context, jql string) (BatchReport, error) {
	report := s.newReport(TypeJira)
	client, err := sources.NewJira(s.cfg.Jira, nil)
	if err != nil {
		return s.finish(report, err)
	}
	issues, err := client.Search(ctx, jql)
	if err != nil {
		return s.finish(report, err)
	}
	for _, is := range issues {
		res, err := s.ingestText(ctx, is.Key, is.Content(), metadata.Params{
			SourceType: TypeJira,
			JiraID:     is.Key,
			Project:    is.Project,
			FlowName:   is.Summary,
			Extra: map[string]string{
				"issue_type": is.Type,
				"status":     is.Status,
			},
		})
		if err != nil {
			return s.finish(report, err)
		}
		report.add(res)
	}
	return s.finish(report, nil)
}

// IngestUICrawl ingests each step of a UI-crawl log under "<file>_<i>".
// A log that fails validation is rejected before anything is stored.
func (s *Service) IngestUICrawl(ctx context.Context, path string) (BatchReport, error) {
	report := s.newReport(TypeUICrawl)
	steps, err := sources.LoadUICrawl(path)
	if err != nil {
		return s.finish(report, err)
	}
	for _, st := range steps {
		res, err := s.ingestText(ctx, st.Key(), st.Content(), metadata.Params{
			SourceType: TypeUICrawl,
			Extra: map[string]string{
				"file": filepath.Base(st.File),
				"step": strconv.Itoa(st.Index),
			},
		})
		if err != nil {
			return s.finish(report, err)
		}
		report.add(res)
	}
	return s.finish(report, nil)
}

// ingestText gates content under key with metadata built from p.
func (s *Service) ingestText(ctx context.Context, key, content string, p metadata.Params) (gate.Result, error) {
	if err := ctx.Err(); err != nil {
		return gate.Result{}, err
	}
	if p.Origin == "" {
		p.Origin = s.cfg.Origin
	}
	if p.User == "" {
		p.User = s.cfg.User
	}
	p.Hash = canonical.ComputeHash(content)
	md, err := metadata.Builder{Clock: s.cfg.Clock}.Build(p)
	if err != nil {
		return gate.Result{}, err
	}
	return s.gate.Ingest(ctx, gate.Request{
		Key:        key,
		SourceType: p.SourceType,
		Content:    content,
		Metadata:   md.WithID(key).Flatten(),
	})
}
