package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/meridian/pkg/audit"
	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/rules/catalog"
	"mercator-hq/meridian/pkg/rules/derive"
	"mercator-hq/meridian/pkg/rules/eval"
	"mercator-hq/meridian/pkg/telemetry/logging"
)

const testCatalog = `
attributes:
  - name: income
    type: float
  - name: debt
    type: float
  - name: dti
    type: float
    rule: debt / income
  - name: band
    type: string
    rule: IF dti > 0.5 THEN "HIGH" ELSE "LOW"
`

type staticCatalogs struct{ c *catalog.Catalog }

func (s staticCatalogs) Current() *catalog.Catalog { return s.c }

func newTestEngine(t *testing.T) *derive.Engine {
	t.Helper()
	ev, err := eval.NewEvaluator(nil, eval.DefaultRegistry(), nil, logging.Discard())
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}
	engine, err := derive.NewEngine(nil, nil, ev, logging.Discard())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.NewLoader(nil, nil, eval.DefaultRegistry(), logging.Discard()).LoadBytes([]byte(testCatalog), "test.yaml")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	return c
}

func newTestHandler(t *testing.T) *DeriveHandler {
	t.Helper()
	return NewDeriveHandler(staticCatalogs{newTestCatalog(t)}, newTestEngine(t), logging.Discard())
}

func postDerive(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, DeriveResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/derive", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp DeriveResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, resp
}

func natives(values map[string]ast.Value) map[string]any {
	out := make(map[string]any, len(values))
	for name, v := range values {
		out[name] = v.Native()
	}
	return out
}

func TestDeriveHandler(t *testing.T) {
	h := newTestHandler(t)

	rec, resp := postDerive(t, h, `{"subject": "s1", "facts": {"income": 4000, "debt": 3000}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if resp.Subject != "s1" {
		t.Errorf("Subject = %q, want s1", resp.Subject)
	}
	want := map[string]any{"band": "HIGH", "dti": 0.75}
	if diff := cmp.Diff(want, natives(resp.Values)); diff != "" {
		t.Errorf("Values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"dti", "band"}, resp.Evaluated); diff != "" {
		t.Errorf("Evaluated mismatch (-want +got):\n%s", diff)
	}
}

func TestDeriveHandler_AttributeFailures(t *testing.T) {
	h := newTestHandler(t)

	rec, resp := postDerive(t, h, `{"subject": "s2", "facts": {"debt": 10}, "attributes": ["band", "nope"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := make(map[string]string)
	for name, e := range resp.Errors {
		got[name] = e.Kind
	}
	want := map[string]string{
		"band": "dependency_failed",
		"nope": "unknown_attribute",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("error kinds mismatch (-want +got):\n%s", diff)
	}
	if len(resp.Values) != 0 {
		t.Errorf("Values = %v, want none", resp.Values)
	}
}

func TestDeriveHandler_NestedFacts(t *testing.T) {
	c, err := catalog.NewLoader(nil, nil, eval.DefaultRegistry(), logging.Discard()).LoadBytes([]byte(`
attributes:
  - name: customer.age
    type: integer
  - name: adult
    rule: customer.age >= 18
`), "nested.yaml")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	h := NewDeriveHandler(staticCatalogs{c}, newTestEngine(t), logging.Discard())

	_, resp := postDerive(t, h, `{"facts": {"customer": {"age": 30}}}`)
	if got := resp.Values["adult"].Native(); got != true {
		t.Errorf("adult = %v, want true", got)
	}
}

func TestDeriveHandler_NonFiniteValues(t *testing.T) {
	c, err := catalog.NewLoader(nil, nil, eval.DefaultRegistry(), logging.Discard()).LoadBytes([]byte(`
attributes:
  - name: big
    type: float
  - name: huge
    type: float
    rule: big * 10
  - name: items
    rule: "[0 - big * 10, 1.5]"
`), "inf.yaml")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	h := NewDeriveHandler(staticCatalogs{c}, newTestEngine(t), logging.Discard())

	rec, resp := postDerive(t, h, `{"facts": {"big": 1e308}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	want := map[string]any{"huge": "+Inf", "items": []any{"-Inf", 1.5}}
	if diff := cmp.Diff(want, natives(resp.Values)); diff != "" {
		t.Errorf("Values mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteJSON_EncodingFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error.Type != "internal_error" {
		t.Errorf("body = %s, want an internal_error envelope", rec.Body.String())
	}
}

func TestDeriveHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		handler  func(t *testing.T) http.Handler
		method   string
		body     string
		wantCode int
		wantType string
	}{
		{
			name:     "wrong method",
			handler:  func(t *testing.T) http.Handler { return newTestHandler(t) },
			method:   http.MethodGet,
			wantCode: http.StatusMethodNotAllowed,
			wantType: "method_not_allowed",
		},
		{
			name:     "malformed body",
			handler:  func(t *testing.T) http.Handler { return newTestHandler(t) },
			method:   http.MethodPost,
			body:     `{"facts":`,
			wantCode: http.StatusBadRequest,
			wantType: "invalid_request",
		},
		{
			name:     "unsupported fact value",
			handler:  func(t *testing.T) http.Handler { return newTestHandler(t) },
			method:   http.MethodPost,
			body:     `{"facts": {"income": [{"a": 1}]}}`,
			wantCode: http.StatusBadRequest,
			wantType: "invalid_facts",
		},
		{
			name: "no catalog",
			handler: func(t *testing.T) http.Handler {
				return NewDeriveHandler(staticCatalogs{}, newTestEngine(t), logging.Discard())
			},
			method:   http.MethodPost,
			body:     `{"facts": {}}`,
			wantCode: http.StatusServiceUnavailable,
			wantType: "catalog_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/derive", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			tt.handler(t).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("error body is not JSON: %v", err)
			}
			if body.Error.Type != tt.wantType {
				t.Errorf("error type = %q, want %q", body.Error.Type, tt.wantType)
			}
		})
	}
}

func TestDeriveHandler_Records(t *testing.T) {
	storage := audit.NewMemoryStorage()
	h := newTestHandler(t).WithRecorder(audit.NewRecorder(storage, false, logging.Discard()))

	_, resp := postDerive(t, h, `{"subject": "s3", "facts": {"income": 100, "debt": 10}}`)
	if resp.AuditID == "" {
		t.Fatal("AuditID is empty")
	}
	records, err := storage.List(context.Background(), &audit.Query{SubjectID: "s3"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != resp.AuditID {
		t.Errorf("records = %v, want one with id %s", records, resp.AuditID)
	}
}

func TestServerHandler_Middleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/v1/derive", newTestHandler(t))
	mux.HandleFunc("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })
	srv := NewServer(Config{MaxBodyBytes: 64}, mux, logging.Discard())

	t.Run("request id is generated", func(t *testing.T) {
		rec, resp := postDerive(t, srv.Handler(), `{"facts": {"income": 1, "debt": 1}}`)
		id := rec.Header().Get(RequestIDHeader)
		if id == "" {
			t.Fatal("response has no request id")
		}
		if resp.Subject != id {
			t.Errorf("Subject = %q, want the request id %q", resp.Subject, id)
		}
	})

	t.Run("request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/derive", strings.NewReader(`{"facts": {}}`))
		req.Header.Set(RequestIDHeader, "req-1")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if got := rec.Header().Get(RequestIDHeader); got != "req-1" {
			t.Errorf("request id = %q, want req-1", got)
		}
	})

	t.Run("panic becomes 500", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "boom") {
			t.Errorf("body leaks panic value: %s", rec.Body.String())
		}
	})

	t.Run("body limit", func(t *testing.T) {
		body := `{"facts": {"income": 1, "debt": 1, "padding": "` + strings.Repeat("x", 100) + `"}}`
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/derive", bytes.NewBufferString(body)))
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})
}

func TestConcurrencyLimitMiddleware(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	h := ConcurrencyLimitMiddleware(1)(slow)

	first := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		first <- rec.Code
	}()
	<-entered

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response has no Retry-After header")
	}

	close(release)
	if code := <-first; code != http.StatusNoContent {
		t.Errorf("first request status = %d, want 204", code)
	}

	go func() { <-entered }()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("request after release status = %d, want 204", rec.Code)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("pong")) })
	srv := NewServer(Config{ListenAddress: "127.0.0.1:0"}, mux, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false after start")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/ping")
	if err != nil {
		t.Fatalf("GET /ping error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
	cfg.ShutdownTimeout = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for a negative timeout")
	}
	cfg = DefaultConfig()
	cfg.MaxConcurrent = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for a negative concurrency limit")
	}
	cfg = DefaultConfig()
	cfg.MaxBodyBytes = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for a negative body limit")
	}
}
