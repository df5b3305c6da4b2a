package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/care-redactor/internal/analysis"
	"github.com/raaihank/care-redactor/internal/audit"
	"github.com/raaihank/care-redactor/internal/cache"
	"github.com/raaihank/care-redactor/internal/config"
	"github.com/raaihank/care-redactor/internal/logger"
	"github.com/raaihank/care-redactor/internal/redaction"
	"github.com/raaihank/care-redactor/internal/websocket"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req analysis.Request) (*analysis.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, req.Text)
	if f.err != nil {
		return nil, f.err
	}
	return &analysis.Analysis{Content: "Compliant.", Model: "fake-model"}, nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]redaction.Outcome
}

func (m *memoryCache) key(text string, opts redaction.Options) string {
	return text + "|" + strings.Join(opts.CustomNames, ",")
}

func (m *memoryCache) Get(_ context.Context, text string, opts redaction.Options) (*redaction.Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.entries[m.key(text, opts)]
	if !ok {
		return nil, false
	}
	return &o, true
}

func (m *memoryCache) Store(_ context.Context, text string, opts redaction.Options, outcome redaction.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.key(text, opts)] = outcome
	return nil
}

func (m *memoryCache) GetStats(context.Context) (*cache.CacheStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &cache.CacheStats{TotalKeys: int64(len(m.entries))}, nil
}

func (m *memoryCache) Ping(context.Context) error { return nil }

type fixture struct {
	server   *Server
	store    *audit.Store
	analyzer *fakeAnalyzer
	cache    *memoryCache
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	store, err := audit.NewStore(config.AuditConfig{
		Driver:       "sqlite3",
		DatabaseURL:  ":memory:",
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:    store,
		analyzer: &fakeAnalyzer{},
		cache:    &memoryCache{entries: map[string]redaction.Outcome{}},
	}

	log := logger.NewNop()
	f.server = New(cfg, log, Deps{
		Redactor: redaction.New(cfg.Redaction, log),
		Audit:    store,
		Cache:    f.cache,
		Analyzer: f.analyzer,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthAndInfo(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var health map[string]interface{}
	decode(t, rec, &health)
	assert.Equal(t, "healthy", health["status"])

	rec = f.do(t, http.MethodGet, "/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info map[string]interface{}
	decode(t, rec, &info)
	assert.Equal(t, "care-redactor", info["name"])
	assert.Len(t, info["categories"], 10)
	assert.Equal(t, true, info["analysis_enabled"])
	require.Contains(t, info, "cache")
	assert.Equal(t, float64(0), info["cache"].(map[string]interface{})["total_keys"])
	assert.NotContains(t, info, "websocket")
}

func TestAnonymize(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/anonymize", map[string]interface{}{
		"ref":  "care-plan-1",
		"text": "John Smith, NHS 943 476 5919, lives at SW1A 1AA.",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AnonymizedText   string                     `json:"anonymizedText"`
		RedactionSummary redaction.RedactionSummary `json:"redactionSummary"`
		Validation       redaction.Validation       `json:"validation"`
		Report           string                     `json:"report"`
		OriginalLength   int                        `json:"originalLength"`
		AuditID          string                     `json:"auditId"`
		Cached           bool                       `json:"cached"`
	}
	decode(t, rec, &resp)

	assert.Equal(t, "J.S., NHS [NHSNUMBER_REDACTED], lives at [POSTCODE_REDACTED].", resp.AnonymizedText)
	assert.Equal(t, 1, resp.RedactionSummary.NamesRedacted)
	assert.True(t, resp.Validation.IsClean)
	assert.Contains(t, resp.Report, "John Smith -> J.S.")
	assert.False(t, resp.Cached)
	require.NotEmpty(t, resp.AuditID)

	record, err := f.store.Get(context.Background(), resp.AuditID)
	require.NoError(t, err)
	assert.Equal(t, "care-plan-1", record.DocumentRef)
	assert.Equal(t, 2, record.PIIRedacted)

	t.Run("second request is served from cache", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/anonymize", map[string]interface{}{
			"text": "John Smith, NHS 943 476 5919, lives at SW1A 1AA.",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var again struct {
			AnonymizedText string `json:"anonymizedText"`
			Cached         bool   `json:"cached"`
		}
		decode(t, rec, &again)
		assert.True(t, again.Cached)
		assert.Equal(t, resp.AnonymizedText, again.AnonymizedText)
	})
}

func TestAnonymizeRejectsBadInput(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Redaction.MaxDocumentBytes = 16
	})

	rec := f.do(t, http.MethodPost, "/v1/anonymize", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/anonymize", map[string]string{"text": strings.Repeat("a", 17)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/anonymize", map[string]string{"text": strings.Repeat("a", envelopeBytes+32)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestValidateEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/validate", map[string]string{"text": "Reviewed by the Care Quality Commission."})
	require.Equal(t, http.StatusOK, rec.Code)

	var clean redaction.Validation
	decode(t, rec, &clean)
	assert.True(t, clean.IsClean)

	rec = f.do(t, http.MethodPost, "/v1/validate", map[string]string{"text": "Contact jane@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	var dirty redaction.Validation
	decode(t, rec, &dirty)
	assert.False(t, dirty.IsClean)
	require.Len(t, dirty.PotentialIssues, 1)
	assert.NotContains(t, dirty.PotentialIssues[0], "jane@example.com")
}

func TestReportEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	body := map[string]interface{}{
		"redactionSummary": redaction.RedactionSummary{
			NamesRedacted: 1,
			PiiRedacted:   map[redaction.Category]int{redaction.CategoryEmail: 2},
			NameMapping:   map[string]string{"Jane Doe": "J.D."},
		},
		"originalLength": 120,
	}

	rec := f.do(t, http.MethodPost, "/v1/report", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decode(t, rec, &resp)
	assert.Contains(t, resp["report"], "Original document length: 120 characters")
	assert.Contains(t, resp["report"], "Jane Doe -> J.D.")
	assert.Contains(t, resp["report"], "email: 2")

	rec = f.do(t, http.MethodPost, "/v1/report", map[string]interface{}{"originalLength": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeEndpoint(t *testing.T) {
	t.Run("sanitized text reaches the analyzer", func(t *testing.T) {
		f := newFixture(t, nil)

		rec := f.do(t, http.MethodPost, "/v1/analyze", map[string]interface{}{
			"ref":          "kloe-7",
			"text":         "Mary Jones reviewed the medication administration record.",
			"instructions": "Check the safe key line.",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			AnonymizedText string             `json:"anonymizedText"`
			Analysis       *analysis.Analysis `json:"analysis"`
			AuditID        string             `json:"auditId"`
		}
		decode(t, rec, &resp)

		require.Len(t, f.analyzer.texts, 1)
		assert.Equal(t, "M.J. reviewed the medication administration record.", f.analyzer.texts[0])
		assert.Equal(t, "Compliant.", resp.Analysis.Content)

		record, err := f.store.Get(context.Background(), resp.AuditID)
		require.NoError(t, err)
		assert.Equal(t, "Compliant.", record.Analysis)
		assert.Equal(t, "fake-model", record.Model)
	})

	t.Run("residual PII blocks analysis", func(t *testing.T) {
		f := newFixture(t, nil)

		rec := f.do(t, http.MethodPost, "/v1/analyze", map[string]string{"text": "Born 01/02/1950."})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp errorResponse
		decode(t, rec, &resp)
		assert.NotEmpty(t, resp.PotentialIssues)
		assert.Empty(t, f.analyzer.texts)
	})

	t.Run("analyzer failure", func(t *testing.T) {
		f := newFixture(t, nil)
		f.analyzer.err = errors.New("upstream down")

		rec := f.do(t, http.MethodPost, "/v1/analyze", map[string]string{"text": "Fine."})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := config.GetDefaults()
		log := logger.NewNop()
		s := New(cfg, log, Deps{Redactor: redaction.New(cfg.Redaction, log)})

		req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"text":"x"}`))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestAuditEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	for _, ref := range []string{"a", "b", "a"} {
		rec := f.do(t, http.MethodPost, "/v1/anonymize", map[string]string{"ref": ref, "text": "Seen by Dr Patel " + ref})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/v1/audits?ref=a", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Records []audit.Record `json:"records"`
		Count   int            `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 2, list.Count)

	rec = f.do(t, http.MethodGet, "/v1/audits/"+list.Records[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/audits/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/audits?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/audits/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats audit.Stats
	decode(t, rec, &stats)
	assert.Equal(t, int64(3), stats.TotalRecords)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, Burst: 1}
	})

	rec := f.do(t, http.MethodPost, "/v1/validate", map[string]string{"text": "ok"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/validate", map[string]string{"text": "ok"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitForwardedFor(t *testing.T) {
	send := func(h http.Handler, xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/validate", strings.NewReader(`{"text":"ok"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	limited := func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, Burst: 1}
	}

	t.Run("header ignored by default", func(t *testing.T) {
		h := newFixture(t, limited).server.Handler()
		assert.Equal(t, http.StatusOK, send(h, "203.0.113.1"))
		assert.Equal(t, http.StatusTooManyRequests, send(h, "203.0.113.2"))
	})

	t.Run("header trusted behind a proxy", func(t *testing.T) {
		h := newFixture(t, func(cfg *config.Config) {
			limited(cfg)
			cfg.Server.TrustProxyHeaders = true
		}).server.Handler()
		assert.Equal(t, http.StatusOK, send(h, "203.0.113.1"))
		assert.Equal(t, http.StatusOK, send(h, "203.0.113.2, 10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, send(h, "203.0.113.1"))
	})
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	assert.Equal(t, "192.0.2.10", getClientIP(req, false))
	assert.Equal(t, "203.0.113.7", getClientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", getClientIP(req, true))
	assert.Equal(t, "192.0.2.10", getClientIP(req, false))
}

func TestRecoveryMiddleware(t *testing.T) {
	f := newFixture(t, nil)

	handler := f.server.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDashboardRoute(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.WebSocket.Enabled = true
	log := logger.NewNop()

	srv := New(cfg, log, Deps{
		Redactor: redaction.New(cfg.Redaction, log),
		Hub:      websocket.NewHub(cfg.WebSocket, zap.NewNop()),
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Redaction feed")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Contains(t, info, "websocket")
	assert.Equal(t, float64(0), info["websocket"].(map[string]interface{})["active_connections"])

	f := newFixture(t, nil)
	rec = f.do(t, http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
