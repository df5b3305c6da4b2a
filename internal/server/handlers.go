package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/care-redactor/internal/analysis"
	"github.com/raaihank/care-redactor/internal/audit"
	"github.com/raaihank/care-redactor/internal/redaction"
	"github.com/raaihank/care-redactor/internal/websocket"
)

type anonymizeResponse struct {
	redaction.Outcome
	AuditID string `json:"auditId,omitempty"`
	Cached  bool   `json:"cached"`
}

type validateRequest struct {
	Text string `json:"text"`
}

type reportRequest struct {
	RedactionSummary redaction.RedactionSummary `json:"redactionSummary"`
	OriginalLength   int                        `json:"originalLength"`
}

type analyzeRequest struct {
	redaction.Document
	Instructions string `json:"instructions,omitempty"`
}

type analyzeResponse struct {
	redaction.Outcome
	Analysis *analysis.Analysis `json:"analysis"`
	AuditID  string             `json:"auditId,omitempty"`
}

type errorResponse struct {
	Error           string   `json:"error"`
	RequestID       string   `json:"requestId,omitempty"`
	PotentialIssues []string `json:"potentialIssues,omitempty"`
}

// handleHealth reports liveness plus the state of optional backends
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{}

	if s.audit != nil {
		checks["audit"] = "ok"
		if err := s.audit.Ping(ctx); err != nil {
			checks["audit"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	if s.cache != nil {
		checks["cache"] = "ok"
		if err := s.cache.Ping(ctx); err != nil {
			// A cache outage degrades latency only
			checks["cache"] = "unavailable"
		}
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}

	writeJSON(w, status, map[string]interface{}{
		"status":    state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleInfo describes the running service
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.redactor.Config()

	categories := make([]string, 0, len(redaction.Categories()))
	for _, c := range redaction.Categories() {
		categories = append(categories, string(c))
	}

	info := map[string]interface{}{
		"name":               "care-redactor",
		"version":            Version,
		"uptime":             time.Since(s.started).Round(time.Second).String(),
		"categories":         categories,
		"redact_dates":       cfg.RedactDates,
		"block_on_issues":    cfg.BlockOnIssues,
		"max_document_bytes": cfg.MaxDocumentBytes,
		"audit_enabled":      s.audit != nil,
		"cache_enabled":      s.cache != nil,
		"analysis_enabled":   s.pipeline != nil,
		"websocket_enabled":  s.wsHub != nil,
	}

	if s.cache != nil {
		stats, err := s.cache.GetStats(r.Context())
		if err != nil {
			s.logger.Warn("Failed to read cache stats", zap.Error(err))
		} else {
			info["cache"] = stats
		}
	}
	if s.wsHub != nil {
		info["websocket"] = s.wsHub.GetStats()
	}

	writeJSON(w, http.StatusOK, info)
}

// handleAnonymize redacts a document and records an audit entry
func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	var doc redaction.Document
	if !s.decodeDocument(w, r, &doc) {
		return
	}

	ctx := r.Context()
	start := time.Now()
	opts := s.redactor.OptionsFor(doc)

	var (
		outcome redaction.Outcome
		cached  bool
	)
	if s.cache != nil {
		if hit, ok := s.cache.Get(ctx, doc.Text, opts); ok {
			outcome, cached = *hit, true
		}
	}
	if !cached {
		outcome = s.redactor.Process(doc)
		if s.cache != nil {
			if err := s.cache.Store(ctx, doc.Text, opts, outcome); err != nil {
				s.logger.WithRequestID(getRequestID(ctx)).Warn("Failed to cache outcome", zap.Error(err))
			}
		}
	}

	resp := anonymizeResponse{Outcome: outcome, Cached: cached}
	if record := s.recordAudit(ctx, audit.NewRecord(doc.Ref, outcome)); record != nil {
		resp.AuditID = record.ID
	}

	s.announce(doc.Ref, outcome, cached, time.Since(start), false)
	writeJSON(w, http.StatusOK, resp)
}

// handleValidate checks already-redacted text for residual PII
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}

	validation := s.redactor.Validate(req.Text)
	if !validation.IsClean {
		s.broadcast(websocket.Event{
			Type:      websocket.EventTypeValidationFailed,
			RequestID: getRequestID(r.Context()),
			Data:      websocket.ValidationFailedEvent{Issues: len(validation.PotentialIssues)},
		})
	}

	writeJSON(w, http.StatusOK, validation)
}

// handleReport renders the text audit report for a summary
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	if req.OriginalLength < 0 {
		writeError(w, http.StatusBadRequest, "originalLength must not be negative")
		return
	}

	report := redaction.CreateAnonymizationReport(req.RedactionSummary, req.OriginalLength)

	if r.Header.Get("Accept") == "text/plain" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(report))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"report": report})
}

// handleAnalyze redacts a document and forwards the sanitized text to the
// analysis collaborator
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is not enabled")
		return
	}

	var req analyzeRequest
	if !s.decodeDocument(w, r, &req) {
		return
	}

	ctx := r.Context()
	start := time.Now()
	result, err := s.pipeline.Run(ctx, req.Document, req.Instructions)

	var blocked *analysis.BlockedError
	switch {
	case errors.As(err, &blocked):
		s.recordAudit(ctx, audit.NewRecord(req.Ref, result.Outcome))
		s.announce(req.Ref, result.Outcome, false, time.Since(start), true)
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:           analysis.ErrBlocked.Error(),
			RequestID:       getRequestID(ctx),
			PotentialIssues: blocked.Validation.PotentialIssues,
		})
		return
	case err != nil:
		s.logger.WithRequestID(getRequestID(ctx)).Error("Analysis failed", zap.Error(err))
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			hub.CaptureException(err)
		}
		writeError(w, http.StatusBadGateway, "analysis failed")
		return
	}

	record := audit.NewRecord(req.Ref, result.Outcome)
	record.Analysis = result.Analysis.Content
	record.Model = result.Analysis.Model

	resp := analyzeResponse{Outcome: result.Outcome, Analysis: result.Analysis}
	if stored := s.recordAudit(ctx, record); stored != nil {
		resp.AuditID = stored.ID
	}

	s.announce(req.Ref, result.Outcome, false, time.Since(start), false)
	writeJSON(w, http.StatusOK, resp)
}

// handleListAudits pages through stored audit records
func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit trail is not enabled")
		return
	}

	q := r.URL.Query()
	opts := audit.ListOptions{DocumentRef: q.Get("ref")}
	var err error
	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
	}

	records, err := s.audit.List(r.Context(), opts)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to list audits", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list audits")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// handleGetAudit returns one audit record
func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit trail is not enabled")
		return
	}

	record, err := s.audit.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to get audit", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get audit")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleAuditStats returns aggregate audit counts
func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit trail is not enabled")
		return
	}

	stats, err := s.audit.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get audit stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// decodeDocument reads a JSON body into dst and enforces the text size limit
func (s *Server) decodeDocument(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeDecodeError(w, r, err)
		return false
	}

	var text string
	switch d := dst.(type) {
	case *redaction.Document:
		text = d.Text
	case *analyzeRequest:
		text = d.Text
	}

	if int64(len(text)) > s.redactor.Config().MaxDocumentBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "document exceeds maximum size")
		return false
	}
	return true
}

func (s *Server) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	s.logger.WithRequestID(getRequestID(r.Context())).Debug("Invalid request body", zap.Error(err))
	writeError(w, http.StatusBadRequest, "invalid JSON body")
}

// recordAudit stores record if auditing is enabled. Failures are logged and
// do not fail the request.
func (s *Server) recordAudit(ctx context.Context, record *audit.Record) *audit.Record {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Insert(ctx, record); err != nil {
		s.logger.WithRequestID(getRequestID(ctx)).Error("Failed to store audit record", zap.Error(err))
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			hub.CaptureException(err)
		}
		return nil
	}
	return record
}

// announce pushes count-only events to dashboard clients
func (s *Server) announce(ref string, outcome redaction.Outcome, cached bool, elapsed time.Duration, blocked bool) {
	pii := make(map[string]int, len(outcome.RedactionSummary.PiiRedacted))
	for c, n := range outcome.RedactionSummary.PiiRedacted {
		pii[string(c)] = n
	}

	s.broadcast(websocket.Event{
		Type: websocket.EventTypeRedaction,
		Data: websocket.RedactionEvent{
			DocumentRef:    ref,
			OriginalLength: outcome.OriginalLength,
			NamesRedacted:  outcome.RedactionSummary.NamesRedacted,
			PIIRedacted:    pii,
			Clean:          outcome.Validation.IsClean,
			Cached:         cached,
			ProcessingMS:   float64(elapsed.Microseconds()) / 1000,
		},
	})

	if !outcome.Validation.IsClean {
		s.broadcast(websocket.Event{
			Type: websocket.EventTypeValidationFailed,
			Data: websocket.ValidationFailedEvent{
				DocumentRef: ref,
				Issues:      len(outcome.Validation.PotentialIssues),
				Blocked:     blocked,
			},
		})
	}
}

func (s *Server) broadcast(event websocket.Event) {
	if s.wsHub != nil {
		s.wsHub.BroadcastEvent(event)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
