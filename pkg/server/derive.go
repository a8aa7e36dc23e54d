package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"mercator-hq/meridian/pkg/audit"
	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/rules/catalog"
	"mercator-hq/meridian/pkg/rules/derive"
	"mercator-hq/meridian/pkg/rules/eval"
	"mercator-hq/meridian/pkg/telemetry/logging"
)

// Catalogs supplies the catalog requests are derived against.
type Catalogs interface {
	Current() *catalog.Catalog
}

// DeriveRequest is the body of POST /v1/derive.
type DeriveRequest struct {
	// Subject identifies the entity being derived. Optional.
	Subject string `json:"subject"`

	// Facts are the subject's facts. Nested objects become dotted names.
	Facts map[string]any `json:"facts"`

	// Attributes to derive. Empty means every derived attribute.
	Attributes []string `json:"attributes,omitempty"`
}

// AttributeError describes a failed attribute.
type AttributeError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// DeriveResponse is the reply to POST /v1/derive. Attribute failures are
// reported in Errors with status 200.
type DeriveResponse struct {
	// Subject echoes the request subject, or the request id when it was empty.
	Subject string `json:"subject"`

	// Values holds the resolved attributes.
	Values map[string]ast.Value `json:"values"`

	// Errors holds the failed attributes.
	Errors map[string]AttributeError `json:"errors,omitempty"`

	// Evaluated lists the rules that ran, in order.
	Evaluated []string `json:"evaluated"`

	// AuditID identifies the audit record, when recording is enabled.
	AuditID string `json:"audit_id,omitempty"`

	// DurationMS is the derivation time in milliseconds.
	DurationMS float64 `json:"duration_ms"`
}

// DeriveHandler serves derivation requests against the current catalog.
type DeriveHandler struct {
	// catalogs supplies the attribute metadata for each request.
	catalogs Catalogs

	// engine runs the derivation.
	engine *derive.Engine

	// recorder, when set, stores every run in the audit trail.
	recorder *audit.Recorder

	// timeout bounds a single derivation. Zero means no limit.
	timeout time.Duration

	// logger is tagged with component=server.derive.
	logger *slog.Logger
}

// NewDeriveHandler creates a handler deriving with engine.
func NewDeriveHandler(catalogs Catalogs, engine *derive.Engine, logger *slog.Logger) *DeriveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeriveHandler{
		catalogs: catalogs,
		engine:   engine,
		logger:   logger.With("component", "server.derive"),
	}
}

// WithRecorder records every derivation with r.
func (h *DeriveHandler) WithRecorder(r *audit.Recorder) *DeriveHandler {
	h.recorder = r
	return h
}

// WithTimeout bounds each derivation. Zero means no limit.
func (h *DeriveHandler) WithTimeout(d time.Duration) *DeriveHandler {
	h.timeout = d
	return h
}

func (h *DeriveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req DeriveRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if req.Subject == "" {
		req.Subject = GetRequestID(r.Context())
	}

	c := h.catalogs.Current()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog_unavailable", "no catalog is loaded")
		return
	}
	requested := req.Attributes
	if len(requested) == 0 {
		requested = c.Derived()
	}

	facts, err := eval.FactsFromNative(eval.FlattenNative(req.Facts))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_facts", err.Error())
		return
	}

	ctx := logging.WithSubjectID(r.Context(), req.Subject)
	runCtx, cancel := h.runContext(ctx)
	result := h.engine.Run(runCtx, c.Attributes(), requested, facts)
	cancel()

	resp := newDeriveResponse(req.Subject, result)
	if h.recorder != nil {
		rec, err := h.recorder.Record(ctx, req.Subject, result, facts)
		if err != nil {
			h.logger.ErrorContext(ctx, "recording derivation failed", "error", err)
		} else {
			resp.AuditID = rec.ID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *DeriveHandler) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(ctx, h.timeout)
	}
	return context.WithCancel(ctx)
}

func newDeriveResponse(subject string, result *derive.Result) DeriveResponse {
	resp := DeriveResponse{
		Subject:    subject,
		Values:     make(map[string]ast.Value),
		Evaluated:  append([]string{}, result.Evaluated...),
		DurationMS: float64(result.Duration.Microseconds()) / 1000,
	}
	names := append([]string(nil), result.Requested...)
	sort.Strings(names)
	for _, name := range names {
		o := result.Outcomes[name]
		if o == nil {
			continue
		}
		if o.Err != nil {
			if resp.Errors == nil {
				resp.Errors = make(map[string]AttributeError)
			}
			resp.Errors[name] = AttributeError{Kind: string(o.Err.Kind), Message: o.Err.Error()}
			continue
		}
		resp.Values[name] = o.Value
	}
	return resp
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, code int, typ, message string) {
	var body errorBody
	body.Error.Type = typ
	body.Error.Message = message
	writeJSON(w, code, body)
}

// writeJSON encodes body before writing the header, so an encoding failure
// becomes a 500 instead of a truncated 200.
func writeJSON(w http.ResponseWriter, code int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		code = http.StatusInternalServerError
		data = []byte(`{"error":{"type":"internal_error","message":"response could not be encoded"}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(data, '\n'))
}
