// CLAUDE:SUMMARY chi HTTP API over the service (flows, playwright, documents, sources, search, stats) with optional bcrypt basic auth and the streamable MCP endpoint.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/flowkeeper/faults"
	"github.com/hazyhaar/flowkeeper/kit"
	"github.com/hazyhaar/flowkeeper/shield"
	"github.com/hazyhaar/flowkeeper/vecstore"
)

// maxBody bounds JSON request bodies.
const maxBody = 8 << 20

// Handler returns the HTTP API. When mcpSrv is non-nil it is served over
// streamable HTTP at cfg.HTTP.MCPPath behind the same authentication.
func (s *Service) Handler(mcpSrv *mcp.Server) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack(s.logger, s.runIDs) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.basicAuth)

		r.Post("/api/flows", s.serve("flow_ingest", http.StatusOK, func(r *http.Request) (any, error) {
			var req FlowRequest
			if err := decodeBody(r, &req); err != nil {
				return nil, err
			}
			if req.Source == "" {
				req.Source = SourceAPI
			}
			return &req, nil
		}, func(ctx context.Context, req any) (any, error) {
			return s.IngestFlow(ctx, *req.(*FlowRequest))
		}))

		r.Post("/api/playwright", s.serve("playwright_ingest", http.StatusOK, func(r *http.Request) (any, error) {
			var req PlaywrightRequest
			if err := decodeBody(r, &req); err != nil {
				return nil, err
			}
			return &req, nil
		}, func(ctx context.Context, req any) (any, error) {
			return s.IngestPlaywright(ctx, *req.(*PlaywrightRequest))
		}))

		r.Route("/api/documents", func(r chi.Router) {
			r.Get("/", s.serve("docs_list", http.StatusOK, func(r *http.Request) (any, error) {
				return &listRequest{
					Source: r.URL.Query().Get("source"),
					Limit:  queryInt(r, "limit", 0),
				}, nil
			}, func(ctx context.Context, req any) (any, error) {
				lr := req.(*listRequest)
				if lr.Source != "" {
					return s.store.ListBySource(ctx, lr.Source)
				}
				return s.List(ctx, lr.Limit)
			}))

			// Store ids embed URLs, so the id is the whole remaining path.
			r.Get("/*", s.serve("docs_get", http.StatusOK, wildcardID, func(ctx context.Context, req any) (any, error) {
				return s.Get(ctx, req.(string))
			}))

			r.Delete("/*", s.serve("docs_delete", http.StatusOK, wildcardID, func(ctx context.Context, req any) (any, error) {
				if err := s.Delete(ctx, req.(string)); err != nil {
					return nil, err
				}
				return deleteResponse{Deleted: 1}, nil
			}))
		})

		r.Delete("/api/sources/{source}", s.serve("source_delete", http.StatusOK, func(r *http.Request) (any, error) {
			return chi.URLParam(r, "source"), nil
		}, func(ctx context.Context, req any) (any, error) {
			n, err := s.DeleteBySource(ctx, req.(string))
			if err != nil {
				return nil, err
			}
			return deleteResponse{Deleted: n}, nil
		}))

		r.Get("/api/search", s.serve("docs_search", http.StatusOK, func(r *http.Request) (any, error) {
			q := r.URL.Query().Get("q")
			if q == "" {
				return nil, faults.Malformedf("q is required")
			}
			return &searchRequest{Query: q, TopK: queryInt(r, "top_k", 5)}, nil
		}, func(ctx context.Context, req any) (any, error) {
			sr := req.(*searchRequest)
			return s.Search(ctx, sr.Query, sr.TopK)
		}))

		r.Get("/api/stats", s.serve("stats", http.StatusOK, func(*http.Request) (any, error) {
			return nil, nil
		}, func(ctx context.Context, _ any) (any, error) {
			return s.Stats(ctx)
		}))

		if mcpSrv != nil {
			h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
			r.Handle(s.cfg.HTTP.MCPPath, h)
			r.Handle(s.cfg.HTTP.MCPPath+"/*", h)
		}
	})
	return r
}

// serve adapts an endpoint to HTTP: decode, run through the kit
// middlewares, encode the response as JSON.
func (s *Service) serve(op string, status int, decode func(*http.Request) (any, error), endpoint kit.Endpoint) http.HandlerFunc {
	ep := kit.Chain(kit.WithRequestIDs(s.runIDs), kit.Logging(s.logger, op))(endpoint)
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		resp, err := ep(kit.WithTransport(r.Context(), "http"), req)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, status, resp)
	}
}

// basicAuth checks HTTP basic credentials against the bcrypt hashes of
// cfg.HTTP.Users. No configured users means no authentication.
func (s *Service) basicAuth(next http.Handler) http.Handler {
	users := s.cfg.HTTP.Users
	if len(users) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		hash, known := users[user]
		if !ok || !known || bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="flowkeeper"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(kit.WithUser(r.Context(), user)))
	})
}

func wildcardID(r *http.Request) (any, error) {
	id, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		return nil, faults.Malformed(err)
	}
	if id == "" {
		return nil, faults.Malformedf("document id is required")
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return faults.Malformed(fmt.Errorf("decode body: %w", err))
	}
	return nil
}

func errorStatus(err error) int {
	switch {
	case faults.IsMalformed(err):
		return http.StatusBadRequest
	case errors.Is(err, vecstore.ErrNotFound):
		return http.StatusNotFound
	case faults.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
