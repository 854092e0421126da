package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/flowkeeper/gate"
)

func do(t *testing.T, h http.Handler, method, target, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func TestHTTP_FlowLifecycle(t *testing.T) {
	s := testService(t, nil)
	h := s.Handler(nil)

	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var out Outcome
	rec = do(t, h, http.MethodPost, "/api/flows",
		`{"flow_name":"login","events":[{"type":"input","selector":"#password","value":"x"},{"type":"click","selector":"#go"}]}`, &out)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, gate.StatusUpdated, out.Status)

	f, err := s.Get(t.Context(), out.StoreID)
	require.NoError(t, err)
	assert.Equal(t, out.ID, f.DocID)

	var docs []map[string]any
	rec = do(t, h, http.MethodGet, "/api/documents?limit=10", "", &docs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, docs, 1)

	var doc map[string]any
	rec = do(t, h, http.MethodGet, "/api/documents/"+url.PathEscape(out.StoreID), "", &doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, out.StoreID, doc["id"])

	var st Stats
	rec = do(t, h, http.MethodGet, "/api/stats", "", &st)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, st.Documents)
	assert.Equal(t, 1, st.TrackedKeys)

	var hits []map[string]any
	rec = do(t, h, http.MethodGet, "/api/search?q=password&top_k=3", "", &hits)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, hits, 1)

	rec = do(t, h, http.MethodDelete, "/api/documents/"+url.PathEscape(out.StoreID), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodDelete, "/api/documents/"+url.PathEscape(out.StoreID), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_Errors(t *testing.T) {
	h := testService(t, nil).Handler(nil)

	rec := do(t, h, http.MethodPost, "/api/flows", `{"events":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/playwright", `{"code":"// nothing"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/search", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_DeleteSource(t *testing.T) {
	s := testService(t, nil)
	h := s.Handler(nil)
	for _, name := range []string{"a", "b"} {
		rec := do(t, h, http.MethodPost, "/api/playwright",
			`{"flow_name":"`+name+`","code":"await page.goto('https://example.com/`+name+`');"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	var del deleteResponse
	rec := do(t, h, http.MethodDelete, "/api/sources/ui_flow", "", &del)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, del.Deleted)
}

func TestHTTP_BasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	s := testService(t, func(c *Config) { c.HTTP.Users = map[string]string{"qa": string(hash)} })
	h := s.Handler(nil)

	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	for _, c := range []struct {
		user, pass string
		want       int
	}{
		{"qa", "wrong", http.StatusUnauthorized},
		{"nobody", "s3cret", http.StatusUnauthorized},
		{"qa", "s3cret", http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.SetBasicAuth(c.user, c.pass)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, c.want, rec.Code, "%s/%s", c.user, c.pass)
	}
}

func TestHTTP_MCPMounted(t *testing.T) {
	s := testService(t, nil)
	srv := mcp.NewServer(&mcp.Implementation{Name: "flowkeeper", Version: "test"}, nil)
	s.RegisterMCP(srv)
	ts := httptest.NewServer(s.Handler(srv))
	defer func() {
		ts.CloseClientConnections()
		ts.Close()
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "test"}, nil)
	session, err := client.Connect(t.Context(), &mcp.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.ListTools(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Tools, 5)
}
