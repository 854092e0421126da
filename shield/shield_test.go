package shield

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazyhaar/flowkeeper/idgen"
	"github.com/hazyhaar/flowkeeper/kit"
)

func stack(h http.Handler) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mws := DefaultAPIStack(logger, idgen.Fixed("req-1"))
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestDefaultAPIStack(t *testing.T) {
	var method, ctxID string
	h := stack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		ctxID = kit.GetRequestID(r.Context())
		if GetLogger(r.Context()) == slog.Default() {
			t.Error("per-request logger missing")
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/api/stats", nil))

	if method != http.MethodGet {
		t.Fatalf("method = %s, want GET", method)
	}
	if ctxID != "req-1" || rec.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("request id: ctx=%q header=%q", ctxID, rec.Header().Get(RequestIDHeader))
	}
	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestRequestID_KeepsCallerID(t *testing.T) {
	var ctxID string
	h := stack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = kit.GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if ctxID != "abc" || rec.Header().Get(RequestIDHeader) != "abc" {
		t.Fatalf("caller id lost: ctx=%q header=%q", ctxID, rec.Header().Get(RequestIDHeader))
	}
}

func TestGetLogger_Default(t *testing.T) {
	if GetLogger(t.Context()) != slog.Default() {
		t.Fatal("expected slog.Default()")
	}
}
