package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/care-redactor/internal/config"
	"github.com/raaihank/care-redactor/internal/logger"
	"github.com/raaihank/care-redactor/internal/redaction"
)

type recordingAnalyzer struct {
	requests []Request
	err      error
}

func (r *recordingAnalyzer) Analyze(_ context.Context, req Request) (*Analysis, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	return &Analysis{Content: "ok", Model: "fake"}, nil
}

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIAnalyzer {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	cfg := config.GetDefaults().Analysis
	cfg.APIKey = "test-api-key"
	cfg.BaseURL = ts.URL + "/v1"
	cfg.Timeout = 5 * time.Second
	return NewOpenAIAnalyzer(cfg, zap.NewNop())
}

func TestOpenAIAnalyze(t *testing.T) {
	var got openai.ChatCompletionRequest
	analyzer := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		resp := openai.ChatCompletionResponse{
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: "Meets the safe key line."},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 40, CompletionTokens: 6},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	analysis, err := analyzer.Analyze(context.Background(), Request{
		Text:         "J.S. reviewed the care plan.",
		Instructions: "Assess against the safe key line.",
	})
	require.NoError(t, err)

	assert.Equal(t, "Meets the safe key line.", analysis.Content)
	assert.Equal(t, "stop", analysis.FinishReason)
	assert.Equal(t, 40, analysis.InputTokens)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "J.S. reviewed the care plan.")
	assert.Contains(t, got.Messages[1].Content, "Assess against the safe key line.")
}

func TestOpenAIAnalyzeErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		analyzer := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"message": "Invalid API key", "type": "invalid_request_error"},
			})
		})
		_, err := analyzer.Analyze(context.Background(), Request{Text: "x"})
		assert.Error(t, err)
	})

	t.Run("no choices", func(t *testing.T) {
		analyzer := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(openai.ChatCompletionResponse{})
		})
		_, err := analyzer.Analyze(context.Background(), Request{Text: "x"})
		assert.ErrorContains(t, err, "no choices")
	})
}

func TestPipeline(t *testing.T) {
	newRedactor := func(block bool) *redaction.Redactor {
		cfg := config.GetDefaults().Redaction
		cfg.BlockOnIssues = block
		return redaction.New(cfg, logger.NewNop())
	}

	t.Run("analyzer only sees sanitized text", func(t *testing.T) {
		fake := &recordingAnalyzer{}
		p := NewPipeline(newRedactor(true), fake, zap.NewNop())

		result, err := p.Run(context.Background(), redaction.Document{Text: "John Smith, john@example.com"}, "")
		require.NoError(t, err)
		require.NotNil(t, result.Analysis)

		require.Len(t, fake.requests, 1)
		assert.Equal(t, "J.S., [EMAIL_REDACTED]", fake.requests[0].Text)
		assert.NotContains(t, fake.requests[0].Text, "John")
	})

	t.Run("residual issues block", func(t *testing.T) {
		fake := &recordingAnalyzer{}
		p := NewPipeline(newRedactor(true), fake, zap.NewNop())

		// Dates are kept by default but the validator still flags them.
		result, err := p.Run(context.Background(), redaction.Document{Text: "Born 01/02/1950."}, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBlocked))

		var blocked *BlockedError
		require.True(t, errors.As(err, &blocked))
		assert.False(t, blocked.Validation.IsClean)
		assert.False(t, result.Outcome.Validation.IsClean)
		assert.Empty(t, fake.requests)
	})

	t.Run("blocking disabled", func(t *testing.T) {
		fake := &recordingAnalyzer{}
		p := NewPipeline(newRedactor(false), fake, zap.NewNop())

		_, err := p.Run(context.Background(), redaction.Document{Text: "Born 01/02/1950."}, "")
		require.NoError(t, err)
		assert.Len(t, fake.requests, 1)
	})

	t.Run("analyzer errors surface", func(t *testing.T) {
		fake := &recordingAnalyzer{err: errors.New("upstream down")}
		p := NewPipeline(newRedactor(true), fake, zap.NewNop())

		_, err := p.Run(context.Background(), redaction.Document{Text: "Fine."}, "")
		assert.ErrorContains(t, err, "upstream down")
	})
}
