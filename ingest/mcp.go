// CLAUDE:SUMMARY Registers the flowkeeper MCP tools: flow_ingest, playwright_ingest, docs_search, docs_list, docs_delete.
package ingest

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/flowkeeper/faults"
	"github.com/hazyhaar/flowkeeper/kit"
)

// RegisterMCP registers the service tools on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerFlowIngestTool(srv)
	s.registerPlaywrightIngestTool(srv)
	s.registerSearchTool(srv)
	s.registerListTool(srv)
	s.registerDeleteTool(srv)
}

func (s *Service) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	mw := kit.Chain(kit.WithRequestIDs(s.runIDs), kit.Logging(s.logger, tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

// --- flow_ingest ---

func (s *Service) registerFlowIngestTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "flow_ingest",
		Description: "Sanitize, canonicalize and store a recorded UI flow. Unchanged flows are skipped.",
		InputSchema: kit.InputSchema(map[string]any{
			"flow_name":        map[string]any{"type": "string", "description": "Flow name; empty gets a random id"},
			"events":           map[string]any{"type": "array", "items": map[string]any{"type": "object"}, "description": "Recorded interaction events"},
			"user":             map[string]any{"type": "string"},
			"jira_id":          map[string]any{"type": "string"},
			"project":          map[string]any{"type": "string"},
			"source_type":      map[string]any{"type": "string", "description": "Default workflow_recorder"},
			"notes":            map[string]any{"type": "string"},
			"custom_sensitive": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Extra sensitive selector keywords"},
		}, "events"),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*FlowRequest)
		if r.Source == "" {
			r.Source = SourceAPI
		}
		return s.IngestFlow(ctx, *r)
	}
	s.register(srv, tool, endpoint, kit.DecodeArgs[FlowRequest]())
}

// --- playwright_ingest ---

func (s *Service) registerPlaywrightIngestTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "playwright_ingest",
		Description: "Parse Playwright TypeScript (goto, fill, click, selectOption) and store it as a UI flow.",
		InputSchema: kit.InputSchema(map[string]any{
			"code":      map[string]any{"type": "string", "description": "Playwright test source"},
			"flow_name": map[string]any{"type": "string"},
			"user":      map[string]any{"type": "string"},
			"jira_id":   map[string]any{"type": "string"},
			"project":   map[string]any{"type": "string"},
		}, "code"),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.IngestPlaywright(ctx, *req.(*PlaywrightRequest))
	}
	s.register(srv, tool, endpoint, kit.DecodeArgs[PlaywrightRequest]())
}

// --- docs_search ---

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

func (s *Service) registerSearchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docs_search",
		Description: "Hybrid full-text and vector search over stored flows and documents.",
		InputSchema: kit.InputSchema(map[string]any{
			"query": map[string]any{"type": "string"},
			"top_k": map[string]any{"type": "integer", "description": "Max results (default 5)"},
		}, "query"),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchRequest)
		if r.Query == "" {
			return nil, faults.Malformedf("query is required")
		}
		return s.Search(ctx, r.Query, r.TopK)
	}
	s.register(srv, tool, endpoint, kit.DecodeArgs[searchRequest]())
}

// --- docs_list ---

type listRequest struct {
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Service) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docs_list",
		Description: "List stored documents, newest first, optionally for one source type.",
		InputSchema: kit.InputSchema(map[string]any{
			"source": map[string]any{"type": "string", "description": "Source type filter"},
			"limit":  map[string]any{"type": "integer", "description": "Max results (default all)"},
		}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listRequest)
		if r.Source != "" {
			return s.store.ListBySource(ctx, r.Source)
		}
		return s.List(ctx, r.Limit)
	}
	s.register(srv, tool, endpoint, kit.DecodeArgs[listRequest]())
}

// --- docs_delete ---

type deleteRequest struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source,omitempty"`
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

func (s *Service) registerDeleteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docs_delete",
		Description: "Delete one document by store id, or every document of a source type.",
		InputSchema: kit.InputSchema(map[string]any{
			"id":     map[string]any{"type": "string", "description": "Store id (<source>-<doc id>)"},
			"source": map[string]any{"type": "string", "description": "Source type"},
		}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*deleteRequest)
		switch {
		case r.ID != "":
			if err := s.Delete(ctx, r.ID); err != nil {
				return nil, err
			}
			return deleteResponse{Deleted: 1}, nil
		case r.Source != "":
			n, err := s.DeleteBySource(ctx, r.Source)
			if err != nil {
				return nil, err
			}
			return deleteResponse{Deleted: n}, nil
		}
		return nil, faults.Malformedf("id or source is required")
	}
	s.register(srv, tool, endpoint, kit.DecodeArgs[deleteRequest]())
}
